package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"bitbucket.org/mmdatafocus/codepool/models"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestLoadCursor_CreatesOnceAtZero(t *testing.T) {
	db := newTestDB(t)
	key := CursorKey{ProductId: testProductId, GenerationId: testGenerationId, Level: models.PackagingLevelUnit}

	first, err := loadCursor(db, key)
	require.NoError(t, err)
	assert.EqualValues(t, 0, first.LastGenerated)

	second, err := loadCursor(db, key)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestAdvanceCursor_StaleVersionConflicts(t *testing.T) {
	db := newTestDB(t)
	key := CursorKey{ProductId: testProductId, GenerationId: testGenerationId, Level: models.PackagingLevelSecondLayer}
	cur, err := loadCursor(db, key)
	require.NoError(t, err)
	stale := *cur

	require.NoError(t, advanceCursor(db, cur, 5))
	assert.EqualValues(t, 1, cur.Version)

	err = advanceCursor(db, &stale, 7)
	assert.ErrorIs(t, err, ErrCursorConflict)
	assert.EqualValues(t, 5, cursorAt(t, db, cur.ID).LastGenerated)

	assert.Error(t, advanceCursor(db, cur, 4))
}

func TestTakeSerials_SkipsPastOtherCursors(t *testing.T) {
	db := newTestDB(t)
	seedPool(t, db, 6)
	seedCursor(t, db, models.PackagingLevelUnit, 4)
	cur, err := loadCursor(db, CursorKey{ProductId: testProductId, GenerationId: testGenerationId, Level: models.PackagingLevelThirdLayer})
	require.NoError(t, err)

	serials, err := takeSerials(db, cur, 2)
	require.NoError(t, err)
	require.Len(t, serials, 2)
	assert.EqualValues(t, 5, serials[0].ID)
	assert.EqualValues(t, 6, serials[1].ID)

	_, err = takeSerials(db, cur, 3)
	assert.ErrorIs(t, err, ErrPoolExhausted)
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))
	assert.ErrorIs(t, classify(fmt.Errorf("x: %w", models.ErrProductNotConfigured)), ErrConfiguration)
	assert.ErrorIs(t, classify(models.ErrBatchNotConfigured), ErrConfiguration)
	assert.ErrorIs(t, classify(gorm.ErrDuplicatedKey), ErrConstraintViolation)
	assert.ErrorIs(t, classify(&pgconn.PgError{Code: "23505"}), ErrConstraintViolation)
	assert.ErrorIs(t, classify(&mysqlDriver.MySQLError{Number: 1062}), ErrConstraintViolation)

	plain := errors.New("boom")
	assert.Equal(t, plain, classify(plain))
	assert.NotErrorIs(t, classify(&pgconn.PgError{Code: "40001"}), ErrConstraintViolation)
}

func TestUnitError_Unwraps(t *testing.T) {
	err := &UnitError{
		Key: UnitKey{Table: "gyxt1_codes", BatchId: "b", ProductId: "p", Level: models.PackagingLevelFirstLayer},
		Err: fmt.Errorf("%w: short", ErrPoolExhausted),
	}
	assert.ErrorIs(t, err, ErrPoolExhausted)
	assert.Contains(t, err.Error(), "table=gyxt1_codes batch_id=b product_id=p level=1")
}

func TestRunLock_NilLockerIsNoop(t *testing.T) {
	lock, err := AcquireRunLock(context.Background(), nil, quietLogger(), "codepool:run:test", 0)
	require.NoError(t, err)
	assert.NoError(t, lock.Release(context.Background()))
	assert.NoError(t, lock.Release(context.Background()))
}
