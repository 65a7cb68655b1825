package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Repository-level sentinel errors. Handlers map these to response codes
// via errors.Is, never by string comparison.
var (
	ErrPrincipalNotFound = errors.New("principal not found")
	ErrPrincipalExists   = errors.New("principal already exists")

	ErrProjectNotFound = errors.New("project not found")

	ErrVersionNotFound = errors.New("version not found")

	ErrBuildNotFound = errors.New("build not found")

	ErrCreditNotFound  = errors.New("credit balance not found")
	ErrDuplicateCredit = errors.New("credit balance already exists for this principal")

	ErrChatMessageNotFound = errors.New("chat message not found")

	ErrSessionNotFound = errors.New("session not found")
)

// IsUniqueViolationError reports whether err is a Postgres UNIQUE
// constraint violation (SQLSTATE 23505), used to translate database-level
// errors into domain-level ones.
func IsUniqueViolationError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}

// IsSerializationFailure reports whether err is a Postgres serialization
// failure (SQLSTATE 40001), raised when two concurrent serializable
// transactions conflict. Callers retry the transaction once on this error.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "40001"
	}
	return false
}
