package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL SQLSTATE codes the repositories react to.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeStringTooLong       = "22001"
	codeNumericOutOfRange   = "22003"
)

// IsUniqueViolation reports whether err is a unique constraint violation.
// When constraint is not empty, the violated constraint must match it.
func IsUniqueViolation(err error, constraint string) bool {
	return isPgError(err, codeUniqueViolation, constraint)
}

// IsForeignKeyViolation reports whether err is a foreign key violation.
func IsForeignKeyViolation(err error, constraint string) bool {
	return isPgError(err, codeForeignKeyViolation, constraint)
}

// IsInvalidValue reports whether PostgreSQL refused a value for its column
// type: a string longer than its VARCHAR or a number out of range.
func IsInvalidValue(err error) bool {
	return isPgError(err, codeStringTooLong, "") || isPgError(err, codeNumericOutOfRange, "")
}

func isPgError(err error, code, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != code {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
