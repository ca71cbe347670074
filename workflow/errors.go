package workflow

import (
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/codepool/models"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrConfiguration: a product, generation id, country or batch the unit depends on is missing.
	ErrConfiguration = errors.New("configuration error")
	// ErrPoolExhausted: fewer pool serials are left than a top-up needs. Never under-filled silently.
	ErrPoolExhausted = errors.New("serial pool exhausted")
	// ErrCountMismatch: SSCC resequencing produced a different number of codes than target rows.
	ErrCountMismatch       = errors.New("count mismatch")
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrCursorConflict: the reconciliation cursor moved under us (version check failed).
	ErrCursorConflict = errors.New("reconciliation cursor conflict")
	ErrRunLocked      = errors.New("another run holds the lock")
)

// UnitKey identifies one reconciliation unit.
type UnitKey struct {
	Table     string
	BatchId   string
	ProductId string
	Level     models.PackagingLevel
}

func (k UnitKey) String() string {
	return fmt.Sprintf("table=%s batch_id=%s product_id=%s level=%d", k.Table, k.BatchId, k.ProductId, int(k.Level))
}

// UnitError is a failure scoped to one unit; the run carries on with the next one.
type UnitError struct {
	Key UnitKey
	Err error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("unit %s: %v", e.Key, e.Err)
}

func (e *UnitError) Unwrap() error {
	return e.Err
}

func isDuplicateKeyErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// classify maps low level errors onto the taxonomy above, keeping the original in the chain.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrConstraintViolation):
		return err
	case errors.Is(err, models.ErrProductNotConfigured), errors.Is(err, models.ErrBatchNotConfigured):
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	case isDuplicateKeyErr(err):
		return fmt.Errorf("%w: %w", ErrConstraintViolation, err)
	}
	return err
}
