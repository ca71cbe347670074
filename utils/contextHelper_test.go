package utils

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLogFields(t *testing.T) {
	assert.Empty(t, LogFields(context.Background()))

	ctx := SetRunIdInContext(context.Background(), "run-1")
	ctx = SetPassInContext(ctx, "duplicate-cleanup")
	assert.Equal(t, logrus.Fields{"run_id": "run-1", "pass": "duplicate-cleanup"}, LogFields(ctx))

	ctx = SetPackagingLevelInContext(ctx, 2)
	ctx = SetTableInContext(ctx, "gyxt2_codes")
	assert.Equal(t, logrus.Fields{
		"run_id": "run-1",
		"pass":   "duplicate-cleanup",
		"level":  2,
		"table":  "gyxt2_codes",
	}, LogFields(ctx))
}

func TestRunIdFromContextOrNew(t *testing.T) {
	ctx := SetRunIdInContext(context.Background(), "run-7")
	assert.Equal(t, "run-7", RunIdFromContextOrNew(ctx))
	assert.NotEmpty(t, RunIdFromContextOrNew(context.Background()))
}
