package database

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrPermissionDenied is returned when row-level security rejects a statement.
var ErrPermissionDenied = errors.New("permission denied")

const sqlStateInsufficientPrivilege = "42501"

// MapError translates driver errors the callers care about into package sentinels.
// Other errors are returned unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == sqlStateInsufficientPrivilege {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, pgErr.Message)
	}
	return err
}
