package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-curator/internal/domain"
	"github.com/phrazzld/scry-curator/internal/platform/logger"
	"github.com/phrazzld/scry-curator/internal/store"
)

const (
	lockCandidateQuery = `
		SELECT kind FROM content_candidates WHERE id = $1 FOR UPDATE
	`
	latestRetryCountQuery = `
		SELECT COALESCE(MAX(retry_count), 0) FROM validation_failures WHERE candidate_id = $1
	`
	insertFailureQuery = `
		INSERT INTO validation_failures
			(id, candidate_id, gate_name, reason, details, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	listFailuresQuery = `
		SELECT id, candidate_id, gate_name, reason, details, retry_count, created_at
		FROM validation_failures
		WHERE candidate_id = $1
		ORDER BY retry_count ASC
	`
)

// PostgresValidationFailureStore implements the store.ValidationFailureStore
// interface using a PostgreSQL database as the storage backend.
type PostgresValidationFailureStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresValidationFailureStore creates a new PostgreSQL implementation of
// the ValidationFailureStore interface.
func NewPostgresValidationFailureStore(db store.DBTX, logger *slog.Logger) *PostgresValidationFailureStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresValidationFailureStore{
		db:     db,
		logger: logger.With(slog.String("component", "validation_failure_store")),
	}
}

var _ store.ValidationFailureStore = (*PostgresValidationFailureStore)(nil)

// WithTx implements store.ValidationFailureStore.WithTx
func (s *PostgresValidationFailureStore) WithTx(tx *sql.Tx) store.ValidationFailureStore {
	return &PostgresValidationFailureStore{db: tx, logger: s.logger}
}

// LockCandidate implements store.ValidationFailureStore.LockCandidate
func (s *PostgresValidationFailureStore) LockCandidate(
	ctx context.Context,
	candidateID uuid.UUID,
) (domain.ContentKind, error) {
	var kind domain.ContentKind
	err := s.db.QueryRowContext(ctx, lockCandidateQuery, candidateID).Scan(&kind)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrRecordNotFound
		}
		return "", MapError(err)
	}
	return kind, nil
}

// LatestRetryCount implements store.ValidationFailureStore.LatestRetryCount
func (s *PostgresValidationFailureStore) LatestRetryCount(ctx context.Context, candidateID uuid.UUID) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, latestRetryCountQuery, candidateID).Scan(&n); err != nil {
		return 0, MapError(err)
	}
	return n, nil
}

// CreateFailure implements store.ValidationFailureStore.CreateFailure
func (s *PostgresValidationFailureStore) CreateFailure(ctx context.Context, failure *domain.ValidationFailure) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := failure.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	_, err := s.db.ExecContext(ctx, insertFailureQuery,
		failure.ID,
		failure.CandidateID,
		failure.GateName,
		failure.Reason,
		nullableJSON(failure.Details),
		failure.RetryCount,
		failure.CreatedAt,
	)
	if err != nil {
		log.Error("failed to record validation failure",
			slog.String("error", err.Error()),
			slog.String("candidate_id", failure.CandidateID.String()),
			slog.Int("retry_count", failure.RetryCount))
		return MapError(err)
	}

	log.Info("validation failure recorded",
		slog.String("candidate_id", failure.CandidateID.String()),
		slog.String("gate", failure.GateName),
		slog.Int("retry_count", failure.RetryCount))
	return nil
}

// ListFailures implements store.ValidationFailureStore.ListFailures
func (s *PostgresValidationFailureStore) ListFailures(
	ctx context.Context,
	candidateID uuid.UUID,
) ([]*domain.ValidationFailure, error) {
	rows, err := s.db.QueryContext(ctx, listFailuresQuery, candidateID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var failures []*domain.ValidationFailure
	for rows.Next() {
		var (
			f       domain.ValidationFailure
			details []byte
		)
		if err := rows.Scan(
			&f.ID, &f.CandidateID, &f.GateName, &f.Reason, &details, &f.RetryCount, &f.CreatedAt,
		); err != nil {
			return nil, MapError(err)
		}
		if len(details) > 0 {
			f.Details = json.RawMessage(details)
		}
		failures = append(failures, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return failures, nil
}
