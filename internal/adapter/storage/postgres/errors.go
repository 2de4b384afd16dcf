package postgres

import (
	"errors"

	"yield-bnpl/internal/core/ports"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// insertErr maps a primary key or unique constraint violation to
// ports.ErrDuplicate so services can tell a lost insert race from a failure.
func insertErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ports.ErrDuplicate
	}
	return err
}
