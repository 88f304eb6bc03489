package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/examgen/examgen-api/internal/store"
)

// PostgreSQL error codes for constraint violations.
const (
	checkViolationCode   = "23514"
	notNullViolationCode = "23502"
)

// mapError translates driver-level errors into store sentinels so
// callers never have to inspect pgconn types. Errors without a specific
// mapping pass through unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case checkViolationCode:
			return fmt.Errorf("%w: check constraint %s: %v",
				store.ErrInvalidEntity, pgErr.ConstraintName, err)
		case notNullViolationCode:
			return fmt.Errorf("%w: column %s must not be null: %v",
				store.ErrInvalidEntity, pgErr.ColumnName, err)
		}
	}

	return err
}
