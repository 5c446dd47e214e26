package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-curator/internal/domain"
	"github.com/phrazzld/scry-curator/internal/platform/logger"
	"github.com/phrazzld/scry-curator/internal/store"
)

const reviewColumns = `
	id, item_id, item_type, priority, reason, assigned_to, assigned_at,
	reviewed_at, COALESCE(decision, ''), notes, created_at
`

const (
	enqueueReviewQuery = `
		INSERT INTO review_queue (id, item_id, item_type, priority, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (item_id) WHERE reviewed_at IS NULL DO NOTHING
		RETURNING ` + reviewColumns

	getActiveReviewQuery = `
		SELECT ` + reviewColumns + `
		FROM review_queue
		WHERE item_id = $1 AND reviewed_at IS NULL
	`

	assignReviewQuery = `
		UPDATE review_queue
		SET assigned_to = $2, assigned_at = $3
		WHERE item_id = $1 AND reviewed_at IS NULL
		RETURNING ` + reviewColumns

	resolveReviewQuery = `
		UPDATE review_queue
		SET reviewed_at = $2, decision = $3, notes = $4
		WHERE item_id = $1 AND reviewed_at IS NULL
		RETURNING ` + reviewColumns

	hasResolvedReviewQuery = `
		SELECT EXISTS (SELECT 1 FROM review_queue WHERE item_id = $1 AND reviewed_at IS NOT NULL)
	`

	listPendingReviewQuery = `
		SELECT ` + reviewColumns + `
		FROM review_queue
		WHERE reviewed_at IS NULL
		ORDER BY priority ASC, created_at ASC, id ASC
		LIMIT $1 OFFSET $2
	`
)

// PostgresReviewQueueStore implements the store.ReviewQueueStore interface
// using a PostgreSQL database as the storage backend.
type PostgresReviewQueueStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresReviewQueueStore creates a new PostgreSQL implementation of the ReviewQueueStore interface.
func NewPostgresReviewQueueStore(db store.DBTX, logger *slog.Logger) *PostgresReviewQueueStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresReviewQueueStore{
		db:     db,
		logger: logger.With(slog.String("component", "review_queue_store")),
	}
}

var _ store.ReviewQueueStore = (*PostgresReviewQueueStore)(nil)

// WithTx implements store.ReviewQueueStore.WithTx
func (s *PostgresReviewQueueStore) WithTx(tx *sql.Tx) store.ReviewQueueStore {
	return &PostgresReviewQueueStore{db: tx, logger: s.logger}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReviewEntry(row rowScanner) (*domain.ReviewEntry, error) {
	var (
		e          domain.ReviewEntry
		assignedTo uuid.NullUUID
		assignedAt sql.NullTime
		reviewedAt sql.NullTime
		decision   string
	)
	err := row.Scan(
		&e.ID, &e.ItemID, &e.ItemType, &e.Priority, &e.Reason,
		&assignedTo, &assignedAt, &reviewedAt, &decision, &e.Notes, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.AssignedTo = uuidPtr(assignedTo)
	e.AssignedAt = timePtr(assignedAt)
	e.ReviewedAt = timePtr(reviewedAt)
	e.Decision = domain.ReviewDecision(decision)
	return &e, nil
}

// Enqueue implements store.ReviewQueueStore.Enqueue
func (s *PostgresReviewQueueStore) Enqueue(
	ctx context.Context,
	entry *domain.ReviewEntry,
) (*domain.ReviewEntry, bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	created, err := scanReviewEntry(s.db.QueryRowContext(ctx, enqueueReviewQuery,
		entry.ID,
		entry.ItemID,
		entry.ItemType,
		entry.Priority,
		entry.Reason,
		entry.CreatedAt,
	))
	if err == nil {
		log.Info("item enqueued for review",
			slog.String("item_id", entry.ItemID.String()),
			slog.Int("priority", entry.Priority))
		return created, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		log.Error("failed to enqueue review",
			slog.String("error", err.Error()),
			slog.String("item_id", entry.ItemID.String()))
		return nil, false, MapError(err)
	}

	// The item already has an unresolved entry.
	existing, err := s.GetActive(ctx, entry.ItemID)
	if err != nil {
		return nil, false, err
	}
	log.Debug("item already awaiting review",
		slog.String("item_id", entry.ItemID.String()),
		slog.String("review_id", existing.ID.String()))
	return existing, false, nil
}

// GetActive implements store.ReviewQueueStore.GetActive
func (s *PostgresReviewQueueStore) GetActive(ctx context.Context, itemID uuid.UUID) (*domain.ReviewEntry, error) {
	entry, err := scanReviewEntry(s.db.QueryRowContext(ctx, getActiveReviewQuery, itemID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrReviewEntryNotFound
		}
		return nil, MapError(err)
	}
	return entry, nil
}

// Assign implements store.ReviewQueueStore.Assign
func (s *PostgresReviewQueueStore) Assign(
	ctx context.Context,
	itemID, operatorID uuid.UUID,
	at time.Time,
) (*domain.ReviewEntry, error) {
	entry, err := scanReviewEntry(s.db.QueryRowContext(ctx, assignReviewQuery, itemID, operatorID, at.UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrReviewEntryNotFound
		}
		return nil, MapError(err)
	}
	return entry, nil
}

// Resolve implements store.ReviewQueueStore.Resolve
func (s *PostgresReviewQueueStore) Resolve(
	ctx context.Context,
	itemID uuid.UUID,
	decision domain.ReviewDecision,
	notes string,
	at time.Time,
) (*domain.ReviewEntry, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	entry, err := scanReviewEntry(s.db.QueryRowContext(ctx, resolveReviewQuery, itemID, at.UTC(), decision, notes))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrReviewEntryNotFound
		}
		log.Error("failed to resolve review",
			slog.String("error", err.Error()),
			slog.String("item_id", itemID.String()))
		return nil, MapError(err)
	}

	log.Info("review resolved",
		slog.String("item_id", itemID.String()),
		slog.String("decision", string(decision)))
	return entry, nil
}

// HasResolved implements store.ReviewQueueStore.HasResolved
func (s *PostgresReviewQueueStore) HasResolved(ctx context.Context, itemID uuid.UUID) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, hasResolvedReviewQuery, itemID).Scan(&exists); err != nil {
		return false, MapError(err)
	}
	return exists, nil
}

// ListPending implements store.ReviewQueueStore.ListPending
func (s *PostgresReviewQueueStore) ListPending(ctx context.Context, limit, offset int) ([]*domain.ReviewEntry, error) {
	limit, offset = pageArgs(limit, offset)

	rows, err := s.db.QueryContext(ctx, listPendingReviewQuery, limit, offset)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	entries := []*domain.ReviewEntry{}
	for rows.Next() {
		e, err := scanReviewEntry(rows)
		if err != nil {
			return nil, MapError(err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return entries, nil
}
