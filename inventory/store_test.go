package inventory

import (
	"fmt"
	"testing"

	"bitbucket.org/mmdatafocus/codepool/models"
	"bitbucket.org/mmdatafocus/codepool/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, models.MigrateTable(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

type rowOpt func(*models.RenderedCode)

func printed(r *models.RenderedCode)    { r.Printed = true }
func scanned(r *models.RenderedCode)    { r.IsScanned = true }
func aggregated(r *models.RenderedCode) { r.IsAggregated = true }
func dropped(r *models.RenderedCode)    { r.IsDropped = true }

func newRow(batchId string, serial int64, code string, opts ...rowOpt) models.RenderedCode {
	r := models.RenderedCode{
		ID:          uuid.NewString(),
		SerialNo:    serial,
		ProductId:   "p1",
		BatchId:     batchId,
		UniqueCode:  code,
		LocationId:  "loc1",
		CodeGenId:   "req1",
		CountryCode: "01" + code,
	}
	for _, o := range opts {
		o(&r)
	}
	return r
}

func serials(rows []models.RenderedCode) []int64 {
	out := make([]int64, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.SerialNo)
	}
	return out
}

func TestTableName(t *testing.T) {
	name, err := TableName("GYXT", models.PackagingLevelFirstLayer)
	require.NoError(t, err)
	assert.Equal(t, "gyxt1_codes", name)

	_, err = TableName("gy-xt", models.PackagingLevelUnit)
	assert.Error(t, err)
	_, err = TableName("gyxt; DROP TABLE products", models.PackagingLevelUnit)
	assert.Error(t, err)
	_, err = TableName("GYXT", models.PackagingLevel(4))
	assert.Error(t, err)
	_, err = TableName("1abc", models.PackagingLevelUnit)
	assert.Error(t, err, "identifiers must start with a letter")
}

func TestStore_CreateExistsDrop(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(0)
	assert.Equal(t, DefaultChunkSize, s.ChunkSize())

	ok, err := s.Exists(db, "gyxt1_codes")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Create(db, "gyxt1_codes"))
	require.NoError(t, s.Create(db, "gyxt1_codes"), "create is idempotent")

	// a fresh store has no cache and asks the catalog
	ok, err = NewStore(0).Exists(db, "gyxt1_codes")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Drop(db, "gyxt1_codes"))
	ok, err = s.Exists(db, "gyxt1_codes")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Error(t, s.Create(db, "bad name"))
}

func TestStore_BulkInsertChunksAndCount(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(7)
	require.NoError(t, s.Create(db, "gyxt0_codes"))

	var rows []models.RenderedCode
	for i := int64(1); i <= 25; i++ {
		var opts []rowOpt
		if i <= 5 {
			opts = append(opts, printed)
		}
		rows = append(rows, newRow("b1", i, fmt.Sprintf("GYXT0C%03d", i), opts...))
	}
	rows = append(rows, newRow("b2", 26, "GYXT0C026"))

	n, err := s.BulkInsert(db, "gyxt0_codes", rows)
	require.NoError(t, err)
	assert.EqualValues(t, 26, n)

	total, err := s.Count(db, "gyxt0_codes", Filter{BatchId: "b1"})
	require.NoError(t, err)
	assert.EqualValues(t, 25, total)

	p, err := s.Count(db, "gyxt0_codes", Filter{BatchId: "b1", Printed: utils.NewTrue()})
	require.NoError(t, err)
	assert.EqualValues(t, 5, p)

	byCode, err := s.Count(db, "gyxt0_codes", Filter{UniqueCodes: []string{"GYXT0C001", "GYXT0C026"}})
	require.NoError(t, err)
	assert.EqualValues(t, 2, byCode)
}

func TestStore_SerialNoIsUnique(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(0)
	require.NoError(t, s.Create(db, "gyxt1_codes"))

	_, err := s.BulkInsert(db, "gyxt1_codes", []models.RenderedCode{newRow("b1", 1, "A")})
	require.NoError(t, err)
	_, err = s.BulkInsert(db, "gyxt1_codes", []models.RenderedCode{newRow("b2", 1, "B")})
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

// requested=100, generated=130, printed=20: keep 80 deletable rows and delete the 30 highest serials.
func TestStore_DeleteWhere_SurplusTrim(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(0)
	table := "gyxt1_codes"
	require.NoError(t, s.Create(db, table))

	var rows []models.RenderedCode
	for i := int64(1); i <= 130; i++ {
		var opts []rowOpt
		if i <= 20 {
			opts = append(opts, printed)
		}
		rows = append(rows, newRow("b1", i, fmt.Sprintf("C%03d", i), opts...))
	}
	_, err := s.BulkInsert(db, table, rows)
	require.NoError(t, err)

	deleted, err := s.DeleteWhere(db, table, Filter{BatchId: "b1", Deletable: true}, OrderBy{Column: "serial_no"}, 100-20)
	require.NoError(t, err)
	assert.EqualValues(t, 30, deleted)

	left, err := s.Find(db, table, Filter{BatchId: "b1"}, OrderBy{Column: "serial_no"})
	require.NoError(t, err)
	require.Len(t, left, 100)
	assert.EqualValues(t, 100, left[len(left)-1].SerialNo)
}

func TestStore_DeleteWhere_NeverTouchesCommittedRows(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(2)
	table := "gyxt2_codes"
	require.NoError(t, s.Create(db, table))

	rows := []models.RenderedCode{
		newRow("b1", 1, "C1"),
		newRow("b1", 2, "C2", printed),
		newRow("b1", 3, "C3", scanned),
		newRow("b1", 4, "C4"),
		newRow("b1", 5, "C5", aggregated),
		newRow("b1", 6, "C6", dropped),
		newRow("b1", 7, "C7"),
		newRow("b2", 8, "C8"),
	}
	_, err := s.BulkInsert(db, table, rows)
	require.NoError(t, err)

	// negative offset behaves like zero: every deletable row of b1 goes
	deleted, err := s.DeleteWhere(db, table, Filter{BatchId: "b1", Deletable: true}, OrderBy{Column: "serial_no"}, -5)
	require.NoError(t, err)
	assert.EqualValues(t, 3, deleted)

	left, err := s.Find(db, table, Filter{}, OrderBy{Column: "serial_no"})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 5, 6, 8}, serials(left))

	_, err = s.DeleteWhere(db, table, Filter{}, OrderBy{Column: "unique_code; --"}, 0)
	assert.Error(t, err)
}

func TestStore_DeleteWhere_OffsetBeyondCount(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(0)
	require.NoError(t, s.Create(db, "gyxt3_codes"))
	_, err := s.BulkInsert(db, "gyxt3_codes", []models.RenderedCode{newRow("b1", 1, "C1"), newRow("b1", 2, "C2")})
	require.NoError(t, err)

	deleted, err := s.DeleteWhere(db, "gyxt3_codes", Filter{BatchId: "b1", Deletable: true}, OrderBy{Column: "serial_no"}, 5)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
