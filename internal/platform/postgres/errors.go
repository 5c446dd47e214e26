package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/scry-curator/internal/store"
)

// SQLSTATE codes the curation schema can raise.
const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
	checkViolationCode      = "23514"
	notNullViolationCode    = "23502"

	// immutableContentCode is raised by the forbid_approved_mutation trigger.
	immutableContentCode = "SC001"
)

// constraintErrors maps a SQLSTATE to the store sentinel it surfaces as and a
// formatter naming the offending constraint, column or trigger message.
var constraintErrors = map[string]struct {
	sentinel error
	describe func(*pgconn.PgError) string
}{
	uniqueViolationCode: {store.ErrDuplicate, func(e *pgconn.PgError) string {
		return "unique violation (" + e.ConstraintName + ")"
	}},
	foreignKeyViolationCode: {store.ErrInvalidEntity, func(e *pgconn.PgError) string {
		return "foreign key violation (" + e.ConstraintName + ")"
	}},
	checkViolationCode: {store.ErrInvalidEntity, func(e *pgconn.PgError) string {
		return "check constraint violation (" + e.ConstraintName + ")"
	}},
	notNullViolationCode: {store.ErrInvalidEntity, func(e *pgconn.PgError) string {
		return "not null violation (" + e.ColumnName + ")"
	}},
	immutableContentCode: {store.ErrImmutable, func(e *pgconn.PgError) string {
		return e.Message
	}},
}

// MapError translates driver errors into store sentinels so services can
// classify them with errors.Is. Errors without a mapping pass through.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	mapped, ok := constraintErrors[pgErr.Code]
	if !ok {
		return err
	}
	if pgErr.Code == immutableContentCode {
		return fmt.Errorf("%w: %s", mapped.sentinel, mapped.describe(pgErr))
	}
	return fmt.Errorf("%w: %s: %v", mapped.sentinel, mapped.describe(pgErr), err)
}

// IsUniqueViolation reports whether err is a unique constraint violation.
// Promotions rely on it to detect a concurrent writer.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// MapUniqueViolation wraps a unique violation in the more specific sentinel,
// which must itself wrap store.ErrDuplicate. Other errors go through MapError.
func MapUniqueViolation(err error, specific error) error {
	if !IsUniqueViolation(err) {
		return MapError(err)
	}
	return fmt.Errorf("%w: %v", specific, err)
}

// CheckRowsAffected returns notFound when an UPDATE matched no rows.
func CheckRowsAffected(result sql.Result, notFound error) error {
	if result == nil {
		return errors.New("nil result provided to CheckRowsAffected")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
