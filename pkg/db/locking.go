package db

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const dialectPostgres = "postgres"

// SupportsRowLocks reports whether the connection's dialect honours SELECT ... FOR UPDATE.
func SupportsRowLocks(tx *gorm.DB) bool {
	return tx != nil && tx.Dialector != nil && tx.Dialector.Name() == dialectPostgres
}

// ForUpdate scopes a query to take a row lock when the dialect supports it.
// sqlite serializes writers at the database level, so the clause is omitted there.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if !SupportsRowLocks(tx) {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// SetLockTimeout bounds how long statements in the current transaction wait for row locks.
func SetLockTimeout(tx *gorm.DB, timeout time.Duration) error {
	if timeout <= 0 || !SupportsRowLocks(tx) {
		return nil
	}
	stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeout.Milliseconds())
	if err := tx.Exec(stmt).Error; err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}
	return nil
}
