package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var ErrDuplicate = errors.New("record already exists")

const uniqueViolation = "23505"

// mapPgError turns unique violations into ErrDuplicate and leaves everything else alone.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}
