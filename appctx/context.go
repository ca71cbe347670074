package appctx

import "context"

// ContextKey is the shared type for all context keys in this codebase.
// Keeping it in a tiny package avoids import cycles (config <-> utils).
type ContextKey string

func (c ContextKey) String() string { return string(c) }

var (
	// ContextKeyRunId identifies one invocation of a batch pass; every log line of the pass carries it.
	ContextKeyRunId = ContextKey("RunId")
	ContextKeyPass  = ContextKey("Pass")

	ContextKeyPackagingLevel = ContextKey("PackagingLevel")
	ContextKeyTable          = ContextKey("Table")
)

func GetString(ctx context.Context, key ContextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok
}

func GetInt(ctx context.Context, key ContextKey) (int, bool) {
	v, ok := ctx.Value(key).(int)
	return v, ok
}

func Set(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}
