package postgres_test

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/scry-curator/internal/platform/postgres"
	"github.com/phrazzld/scry-curator/internal/store"
	"github.com/stretchr/testify/assert"
)

func newPgError(code string) *pgconn.PgError {
	return &pgconn.PgError{
		Code:           code,
		Message:        "error message",
		SchemaName:     "public",
		TableName:      "content_candidates",
		ColumnName:     "draft_id",
		ConstraintName: "content_candidates_draft_id_key",
	}
}

type mockResult struct {
	rowsAffected int64
	err          error
}

func (m mockResult) LastInsertId() (int64, error) { return 0, m.err }
func (m mockResult) RowsAffected() (int64, error) { return m.rowsAffected, m.err }

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	assert.True(t, postgres.IsUniqueViolation(newPgError("23505")))
	assert.True(t, postgres.IsUniqueViolation(fmt.Errorf("insert candidate: %w", newPgError("23505"))))
	assert.False(t, postgres.IsUniqueViolation(newPgError("23503")))
	assert.False(t, postgres.IsUniqueViolation(errors.New("plain")))
	assert.False(t, postgres.IsUniqueViolation(nil))
}

func TestCheckRowsAffected(t *testing.T) {
	t.Parallel()

	assert.NoError(t, postgres.CheckRowsAffected(mockResult{rowsAffected: 1}, store.ErrTaskNotFound))

	err := postgres.CheckRowsAffected(mockResult{}, store.ErrTaskNotFound)
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = postgres.CheckRowsAffected(mockResult{err: errors.New("driver")}, store.ErrTaskNotFound)
	assert.ErrorContains(t, err, "failed to get rows affected")
	assert.NotErrorIs(t, err, store.ErrNotFound)

	assert.Error(t, postgres.CheckRowsAffected(nil, store.ErrPipelineNotFound))
}

func TestMapError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		errIs  error
		errMsg string
	}{
		{name: "no rows", err: sql.ErrNoRows, errIs: store.ErrNotFound},
		{
			name:   "unique violation",
			err:    newPgError("23505"),
			errIs:  store.ErrDuplicate,
			errMsg: "unique violation (content_candidates_draft_id_key)",
		},
		{
			name:   "foreign key violation",
			err:    newPgError("23503"),
			errIs:  store.ErrInvalidEntity,
			errMsg: "foreign key violation (content_candidates_draft_id_key)",
		},
		{name: "check violation", err: newPgError("23514"), errIs: store.ErrInvalidEntity, errMsg: "check constraint"},
		{name: "not null violation", err: newPgError("23502"), errIs: store.ErrInvalidEntity, errMsg: "draft_id"},
		{name: "approved content trigger", err: newPgError("SC001"), errIs: store.ErrImmutable, errMsg: "error message"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			result := postgres.MapError(tt.err)
			assert.ErrorIs(t, result, tt.errIs)
			if tt.errMsg != "" {
				assert.Contains(t, result.Error(), tt.errMsg)
			}
		})
	}

	t.Run("nil", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, postgres.MapError(nil))
	})

	t.Run("unmapped errors pass through", func(t *testing.T) {
		t.Parallel()
		undefined := newPgError("42P01")
		assert.Same(t, undefined, postgres.MapError(undefined))

		plain := errors.New("connection reset")
		assert.Equal(t, plain, postgres.MapError(plain))
	})
}

func TestMapUniqueViolation(t *testing.T) {
	t.Parallel()

	err := postgres.MapUniqueViolation(newPgError("23505"), store.ErrRecordExists)
	assert.ErrorIs(t, err, store.ErrRecordExists)
	assert.ErrorIs(t, err, store.ErrDuplicate)

	err = postgres.MapUniqueViolation(newPgError("23503"), store.ErrRecordExists)
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
	assert.NotErrorIs(t, err, store.ErrRecordExists)

	plain := errors.New("connection reset")
	assert.Equal(t, plain, postgres.MapUniqueViolation(plain, store.ErrRecordExists))
}
