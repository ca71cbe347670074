package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

func unitLockName(key string) string {
	return fmt.Sprintf("codepool:%s", key)
}

// acquireUnitLock serializes writers of one unit across instances using database advisory locks.
// Postgres takes a transaction-scoped lock released at commit/rollback. MySQL GET_LOCK is
// connection-scoped, so it must run on the unit's tx and the returned release must be called.
// SQLite has a single writer anyway.
func acquireUnitLock(tx *gorm.DB, key string) (release func(), err error) {
	lockName := unitLockName(key)
	switch tx.Dialector.Name() {
	case "postgres":
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", lockName).Error; err != nil {
			return nil, err
		}
		return func() {}, nil
	case "mysql":
		var ok int
		if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
			return nil, err
		}
		if ok != 1 {
			return nil, fmt.Errorf("could not acquire unit lock %s", lockName)
		}
		// release runs from a defer inside the transaction closure, so RELEASE_LOCK happens just
		// before COMMIT. Another instance can take the lock in that gap and still see the old rows;
		// the cursor version check and the serial_no unique key catch what that reader would break.
		return func() {
			var _ok int
			_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
		}, nil
	default:
		return func() {}, nil
	}
}
