package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/codepool/appctx"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Alias the shared context key type so existing code keeps working.
type contextKey = appctx.ContextKey

var (
	ContextKeyRunId          = appctx.ContextKeyRunId
	ContextKeyPass           = appctx.ContextKeyPass
	ContextKeyPackagingLevel = appctx.ContextKeyPackagingLevel
	ContextKeyTable          = appctx.ContextKeyTable
)

func GetRunIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyRunId)
}

func SetRunIdInContext(ctx context.Context, runId string) context.Context {
	return appctx.Set(ctx, ContextKeyRunId, runId)
}

// RunIdFromContextOrNew returns the run id stored on ctx, or a fresh one.
func RunIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := GetRunIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func GetPassFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyPass)
}

func SetPassInContext(ctx context.Context, pass string) context.Context {
	return appctx.Set(ctx, ContextKeyPass, pass)
}

func GetPackagingLevelFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyPackagingLevel)
}

func SetPackagingLevelInContext(ctx context.Context, level int) context.Context {
	return appctx.Set(ctx, ContextKeyPackagingLevel, level)
}

func GetTableFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyTable)
}

func SetTableInContext(ctx context.Context, table string) context.Context {
	return appctx.Set(ctx, ContextKeyTable, table)
}

// LogFields returns the run id, pass, level and table stored on ctx, skipping the ones not set.
func LogFields(ctx context.Context) logrus.Fields {
	fields := logrus.Fields{}
	if v, ok := GetRunIdFromContext(ctx); ok {
		fields["run_id"] = v
	}
	if v, ok := GetPassFromContext(ctx); ok {
		fields["pass"] = v
	}
	if v, ok := GetPackagingLevelFromContext(ctx); ok {
		fields["level"] = v
	}
	if v, ok := GetTableFromContext(ctx); ok {
		fields["table"] = v
	}
	return fields
}
