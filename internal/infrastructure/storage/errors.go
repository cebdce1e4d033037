package storage

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

// Sentinel errors callers branch on. Absence and constraint violations are
// classified here so engines never inspect driver errors themselves.
var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrLinkExists is returned when a link for the same
	// (marketplace, marketplace_order_id) already exists.
	ErrLinkExists = errors.New("storage: order link already exists")

	// ErrDuplicatePayment is returned when a payment row for the same
	// (marketplace, marketplace_order_id) already exists.
	ErrDuplicatePayment = errors.New("storage: payment already exists")

	// ErrForeignKey is returned when an insert/update references an ERP order
	// that no longer exists.
	ErrForeignKey = errors.New("storage: foreign key violation")
)

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}
