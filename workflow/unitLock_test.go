package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireUnitLock_NoopOnSqlite(t *testing.T) {
	db := newTestDB(t)
	assert.Equal(t, "codepool:gyxt1_codes:batch-1", unitLockName("gyxt1_codes:batch-1"))

	release, err := acquireUnitLock(db, "gyxt1_codes:batch-1")
	require.NoError(t, err)
	require.NotNil(t, release)
	release()
	// same key again in a new tx
	release, err = acquireUnitLock(db, "gyxt1_codes:batch-1")
	require.NoError(t, err)
	release()
}
