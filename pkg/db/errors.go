package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	pkgerrors "github.com/machawaste/wastelink-backend/pkg/errors"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// IsUniqueViolation reports whether the provided error references a unique
// constraint violation. When constraintName is provided, the helper looks for
// the constraint text in the error message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraintName != "" && strings.Contains(msg, constraintName) {
		return true
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if code := pgCode(err); code != "" {
		return code == pgUniqueViolation
	}
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// IsLockConflict reports whether err came from a lock wait that timed out, a
// deadlock, or a serialization failure. These are safe to retry.
func IsLockConflict(err error) bool {
	if err == nil {
		return false
	}
	switch pgCode(err) {
	case pgLockNotAvailable, pgDeadlockDetected, pgSerializationFailure:
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

func pgCode(err error) string {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// Classify maps a storage error onto the domain error taxonomy. Typed errors
// pass through untouched.
func Classify(err error, message string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, message)
	case IsLockConflict(err):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, message)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
	}
}
