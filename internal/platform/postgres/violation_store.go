package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/phrazzld/scry-curator/internal/domain"
	"github.com/phrazzld/scry-curator/internal/platform/logger"
	"github.com/phrazzld/scry-curator/internal/store"
)

const (
	insertViolationQuery = `
		INSERT INTO immutability_violations
			(id, item_id, item_type, attempted_operation, acting_user, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	listViolationsQuery = `
		SELECT id, item_id, item_type, attempted_operation, acting_user, details, created_at
		FROM immutability_violations
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`
)

// PostgresViolationStore implements the store.ViolationStore interface
// using a PostgreSQL database as the storage backend.
type PostgresViolationStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresViolationStore creates a new PostgreSQL implementation of the ViolationStore interface.
func NewPostgresViolationStore(db store.DBTX, logger *slog.Logger) *PostgresViolationStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresViolationStore{
		db:     db,
		logger: logger.With(slog.String("component", "violation_store")),
	}
}

var _ store.ViolationStore = (*PostgresViolationStore)(nil)

// WithTx implements store.ViolationStore.WithTx
func (s *PostgresViolationStore) WithTx(tx *sql.Tx) store.ViolationStore {
	return &PostgresViolationStore{db: tx, logger: s.logger}
}

// CreateViolation implements store.ViolationStore.CreateViolation
func (s *PostgresViolationStore) CreateViolation(ctx context.Context, v *domain.ImmutabilityViolation) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	_, err := s.db.ExecContext(ctx, insertViolationQuery,
		v.ID,
		v.ItemID,
		v.ItemType,
		v.AttemptedOperation,
		v.ActingUser,
		nullableJSON(v.Details),
		v.CreatedAt,
	)
	if err != nil {
		log.Error("failed to record immutability violation",
			slog.String("error", err.Error()),
			slog.String("item_id", v.ItemID.String()))
		return MapError(err)
	}

	log.Warn("immutability violation recorded",
		slog.String("item_id", v.ItemID.String()),
		slog.String("operation", string(v.AttemptedOperation)),
		slog.String("acting_user", v.ActingUser))
	return nil
}

// ListViolations implements store.ViolationStore.ListViolations
func (s *PostgresViolationStore) ListViolations(
	ctx context.Context,
	limit, offset int,
) ([]*domain.ImmutabilityViolation, error) {
	limit, offset = pageArgs(limit, offset)

	rows, err := s.db.QueryContext(ctx, listViolationsQuery, limit, offset)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	violations := []*domain.ImmutabilityViolation{}
	for rows.Next() {
		var (
			v       domain.ImmutabilityViolation
			details []byte
		)
		if err := rows.Scan(
			&v.ID, &v.ItemID, &v.ItemType, &v.AttemptedOperation, &v.ActingUser, &details, &v.CreatedAt,
		); err != nil {
			return nil, MapError(err)
		}
		if len(details) > 0 {
			v.Details = json.RawMessage(details)
		}
		violations = append(violations, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return violations, nil
}
