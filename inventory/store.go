package inventory

import (
	"fmt"
	"strings"
	"sync"

	"bitbucket.org/mmdatafocus/codepool/models"
	"bitbucket.org/mmdatafocus/codepool/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DefaultChunkSize = 1000

// Store reads and writes the dynamic per-(generation id, level) code tables.
// It remembers tables it has seen, so repeated existence checks in one run skip the catalog.
type Store struct {
	chunkSize int

	mu    sync.RWMutex
	known map[string]struct{}
}

func NewStore(chunkSize int) *Store {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Store{chunkSize: chunkSize, known: map[string]struct{}{}}
}

func (s *Store) ChunkSize() int {
	return s.chunkSize
}

// Filter narrows rows of one dynamic table. Zero value matches everything.
type Filter struct {
	BatchId string
	Printed *bool
	// Deletable keeps only rows that are not printed, scanned, aggregated or dropped.
	Deletable   bool
	UniqueCodes []string
}

func (f Filter) apply(q *gorm.DB) *gorm.DB {
	if f.BatchId != "" {
		q = q.Where("batch_id = ?", f.BatchId)
	}
	if f.Printed != nil {
		q = q.Where("printed = ?", *f.Printed)
	}
	if f.Deletable {
		q = q.Where("printed = ? AND is_scanned = ? AND is_aggregated = ? AND is_dropped = ?", false, false, false, false)
	}
	if f.UniqueCodes != nil {
		q = q.Where("unique_code IN ?", f.UniqueCodes)
	}
	return q
}

var orderColumns = map[string]bool{
	"serial_no":  true,
	"created_at": true,
	"id":         true,
}

// OrderBy is a single allow-listed sort column. id breaks ties.
type OrderBy struct {
	Column string
	Desc   bool
}

func (o OrderBy) clause(reverse bool) (clause.OrderBy, error) {
	if !orderColumns[o.Column] {
		return clause.OrderBy{}, fmt.Errorf("order column %q not allowed", o.Column)
	}
	desc := o.Desc != reverse
	cols := []clause.OrderByColumn{{Column: clause.Column{Name: o.Column}, Desc: desc}}
	if o.Column != "id" {
		cols = append(cols, clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: desc})
	}
	return clause.OrderBy{Columns: cols}, nil
}

func (s *Store) remember(table string) {
	s.mu.Lock()
	s.known[table] = struct{}{}
	s.mu.Unlock()
}

// Forget drops table from the cache, e.g. after the transaction that created it rolled back.
func (s *Store) Forget(table string) {
	s.mu.Lock()
	delete(s.known, table)
	s.mu.Unlock()
}

func (s *Store) Exists(tx *gorm.DB, table string) (bool, error) {
	if err := utils.ValidateIdentifier(table); err != nil {
		return false, err
	}
	s.mu.RLock()
	_, ok := s.known[table]
	s.mu.RUnlock()
	if ok {
		return true, nil
	}
	if !tx.Migrator().HasTable(table) {
		return false, nil
	}
	s.remember(table)
	return true, nil
}

// Create makes the table if it is missing. Foreign keys cascade from the pool, product, batch and location.
func (s *Store) Create(tx *gorm.DB, table string) error {
	if err := utils.ValidateIdentifier(table); err != nil {
		return err
	}
	t := columnTypesFor(tx.Dialector.Name())

	ddl := strings.Join([]string{
		"id " + t.id + " NOT NULL PRIMARY KEY",
		"serial_no " + t.bigint + " NOT NULL",
		"product_id " + t.id + " NOT NULL",
		"batch_id " + t.id + " NOT NULL",
		"unique_code " + t.varchar255 + " NOT NULL",
		"location_id " + t.id + " NOT NULL",
		"code_gen_id " + t.varchar255 + " NOT NULL",
		"country_code " + t.text + " NOT NULL",
		"printed BOOLEAN NOT NULL DEFAULT FALSE",
		"is_scanned BOOLEAN NOT NULL DEFAULT FALSE",
		"is_aggregated BOOLEAN NOT NULL DEFAULT FALSE",
		"is_dropped BOOLEAN NOT NULL DEFAULT FALSE",
		"parent_id " + t.id + " NULL",
		"sent_to_cloud BOOLEAN NOT NULL DEFAULT FALSE",
		"dropout_reason " + t.varchar20 + " NULL",
		"is_scanned_in_order BOOLEAN NOT NULL DEFAULT FALSE",
		"storage_bin " + t.bigint + " NULL",
		"in_transit BOOLEAN NOT NULL DEFAULT FALSE",
		"updated_at " + t.timestamp + " NULL",
		"created_at " + t.timestamp + " NULL",
		"UNIQUE (serial_no)",
		"FOREIGN KEY (serial_no) REFERENCES codes_generated(id) ON DELETE CASCADE",
		"FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE",
		"FOREIGN KEY (batch_id) REFERENCES batches(id) ON DELETE CASCADE",
		"FOREIGN KEY (location_id) REFERENCES locations(id) ON DELETE CASCADE",
	}, ", ")

	if t.inlineIndexes {
		// MySQL has no CREATE INDEX IF NOT EXISTS
		ddl += ", INDEX " + table + "_bidx (batch_id), INDEX " + table + "_uidx (unique_code)"
	}
	if err := tx.Exec("CREATE TABLE IF NOT EXISTS ? ("+ddl+")", clause.Table{Name: table}).Error; err != nil {
		return fmt.Errorf("create %s: %w", table, err)
	}
	if !t.inlineIndexes {
		if err := tx.Exec("CREATE INDEX IF NOT EXISTS ? ON ? (batch_id)",
			clause.Table{Name: table + "_bidx"}, clause.Table{Name: table}).Error; err != nil {
			return fmt.Errorf("index %s: %w", table, err)
		}
		if err := tx.Exec("CREATE INDEX IF NOT EXISTS ? ON ? (unique_code)",
			clause.Table{Name: table + "_uidx"}, clause.Table{Name: table}).Error; err != nil {
			return fmt.Errorf("index %s: %w", table, err)
		}
	}
	s.remember(table)
	return nil
}

type columnTypes struct {
	id            string
	bigint        string
	varchar255    string
	varchar20     string
	text          string
	timestamp     string
	inlineIndexes bool
}

func columnTypesFor(dialect string) columnTypes {
	switch dialect {
	case "postgres":
		return columnTypes{id: "VARCHAR(36)", bigint: "BIGINT", varchar255: "VARCHAR(255)", varchar20: "VARCHAR(20)", text: "TEXT", timestamp: "TIMESTAMPTZ"}
	case "mysql":
		return columnTypes{id: "VARCHAR(36)", bigint: "BIGINT", varchar255: "VARCHAR(255)", varchar20: "VARCHAR(20)", text: "TEXT", timestamp: "DATETIME(3)", inlineIndexes: true}
	default:
		return columnTypes{id: "TEXT", bigint: "INTEGER", varchar255: "TEXT", varchar20: "TEXT", text: "TEXT", timestamp: "DATETIME"}
	}
}

// BulkInsert writes rows in statements of at most ChunkSize rows and returns the number inserted.
func (s *Store) BulkInsert(tx *gorm.DB, table string, rows []models.RenderedCode) (int64, error) {
	if err := utils.ValidateIdentifier(table); err != nil {
		return 0, err
	}
	var inserted int64
	for _, chunk := range utils.Chunk(rows, s.chunkSize) {
		res := tx.Table(table).Create(&chunk)
		if res.Error != nil {
			return inserted, res.Error
		}
		inserted += res.RowsAffected
	}
	return inserted, nil
}

func (s *Store) Count(tx *gorm.DB, table string, f Filter) (int64, error) {
	if err := utils.ValidateIdentifier(table); err != nil {
		return 0, err
	}
	var n int64
	err := f.apply(tx.Table(table)).Count(&n).Error
	return n, err
}

// Find lists matching rows in the given order.
func (s *Store) Find(tx *gorm.DB, table string, f Filter, order OrderBy) ([]models.RenderedCode, error) {
	if err := utils.ValidateIdentifier(table); err != nil {
		return nil, err
	}
	oc, err := order.clause(false)
	if err != nil {
		return nil, err
	}
	var rows []models.RenderedCode
	err = f.apply(tx.Table(table)).Clauses(oc).Find(&rows).Error
	return rows, err
}

// DeleteWhere deletes the matching rows that come after the first offset rows in the given order.
// A negative offset is treated as zero. Rows are picked from the far end of the order,
// so no OFFSET without LIMIT is needed.
func (s *Store) DeleteWhere(tx *gorm.DB, table string, f Filter, order OrderBy, offset int64) (int64, error) {
	if offset < 0 {
		offset = 0
	}
	reversed, err := order.clause(true)
	if err != nil {
		return 0, err
	}
	total, err := s.Count(tx, table, f)
	if err != nil {
		return 0, err
	}
	n := total - offset
	if n <= 0 {
		return 0, nil
	}

	var ids []string
	if err := f.apply(tx.Table(table)).Clauses(reversed).Limit(int(n)).Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	return s.deleteIds(tx, table, ids)
}

// DeleteRows removes the given row ids.
func (s *Store) DeleteRows(tx *gorm.DB, table string, ids []string) (int64, error) {
	if err := utils.ValidateIdentifier(table); err != nil {
		return 0, err
	}
	return s.deleteIds(tx, table, ids)
}

func (s *Store) deleteIds(tx *gorm.DB, table string, ids []string) (int64, error) {
	var deleted int64
	for _, chunk := range utils.Chunk(ids, s.chunkSize) {
		res := tx.Table(table).Where("id IN ?", chunk).Delete(&models.RenderedCode{})
		if res.Error != nil {
			return deleted, res.Error
		}
		deleted += res.RowsAffected
	}
	return deleted, nil
}

// Drop removes the table if present.
func (s *Store) Drop(tx *gorm.DB, table string) error {
	if err := utils.ValidateIdentifier(table); err != nil {
		return err
	}
	if err := tx.Exec("DROP TABLE IF EXISTS ?", clause.Table{Name: table}).Error; err != nil {
		return fmt.Errorf("drop %s: %w", table, err)
	}
	s.Forget(table)
	return nil
}
