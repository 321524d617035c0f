package storage

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when an entity does not exist — or exists but
// belongs to another organization. The two cases are deliberately
// indistinguishable so ids cannot be used as an existence oracle.
var ErrNotFound = errors.New("storage: not found")

// ErrConflict is returned when a uniqueness constraint rejects a write
// (duplicate reaction, duplicate label name, concurrent provisioning).
var ErrConflict = errors.New("storage: conflict")

// ErrLimitExceeded is returned when a create would push the organization
// past its plan limits.
var ErrLimitExceeded = errors.New("storage: plan limit exceeded")

// ErrForeignItems is returned by bulk reorders when the client-supplied id
// set contains ids that do not belong to the target board. Nothing is
// written in that case.
var ErrForeignItems = errors.New("storage: items outside board")

// isUniqueViolation matches the Postgres unique_violation error code.
// The tenant resolver's self-healing insert relies on this for its
// write-then-re-read recovery under concurrent first requests.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isForeignKeyViolation matches the Postgres foreign_key_violation code.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
