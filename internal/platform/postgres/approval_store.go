package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-curator/internal/domain"
	"github.com/phrazzld/scry-curator/internal/platform/logger"
	"github.com/phrazzld/scry-curator/internal/store"
)

const approvalColumns = `
	id, item_id, item_type, approved_id, operator_id, approval_type, notes, created_at
`

const (
	insertApprovalQuery = `
		INSERT INTO approval_events
			(id, item_id, item_type, approved_id, operator_id, approval_type, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	getApprovalByItemQuery = `
		SELECT ` + approvalColumns + `
		FROM approval_events
		WHERE item_id = $1 OR approved_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	listApprovalsByOperatorQuery = `
		SELECT ` + approvalColumns + `
		FROM approval_events
		WHERE operator_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	listApprovalsByTypeQuery = `
		SELECT ` + approvalColumns + `
		FROM approval_events
		WHERE approval_type = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	approvalStatsQuery = `
		SELECT item_type, approval_type, COUNT(*)
		FROM approval_events
		GROUP BY item_type, approval_type
	`
	insertDeprecationQuery = `
		INSERT INTO content_deprecations
			(id, approved_id, kind, replaced_by, reason, operator_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
)

// PostgresApprovalStore implements the store.ApprovalStore interface
// using a PostgreSQL database as the storage backend.
type PostgresApprovalStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresApprovalStore creates a new PostgreSQL implementation of the ApprovalStore interface.
func NewPostgresApprovalStore(db store.DBTX, logger *slog.Logger) *PostgresApprovalStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresApprovalStore{
		db:     db,
		logger: logger.With(slog.String("component", "approval_store")),
	}
}

var _ store.ApprovalStore = (*PostgresApprovalStore)(nil)

// WithTx implements store.ApprovalStore.WithTx
func (s *PostgresApprovalStore) WithTx(tx *sql.Tx) store.ApprovalStore {
	return &PostgresApprovalStore{db: tx, logger: s.logger}
}

func scanApprovalEvent(row rowScanner) (*domain.ApprovalEvent, error) {
	var (
		e          domain.ApprovalEvent
		approvedID uuid.NullUUID
		operatorID uuid.NullUUID
	)
	if err := row.Scan(
		&e.ID, &e.ItemID, &e.ItemType, &approvedID, &operatorID, &e.ApprovalType, &e.Notes, &e.CreatedAt,
	); err != nil {
		return nil, err
	}
	e.ApprovedID = uuidPtr(approvedID)
	e.OperatorID = uuidPtr(operatorID)
	return &e, nil
}

// CreateApproval implements store.ApprovalStore.CreateApproval
func (s *PostgresApprovalStore) CreateApproval(ctx context.Context, event *domain.ApprovalEvent) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := event.Validate(); err != nil {
		log.Warn("approval validation failed",
			slog.String("error", err.Error()),
			slog.String("item_id", event.ItemID.String()))
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	_, err := s.db.ExecContext(ctx, insertApprovalQuery,
		event.ID,
		event.ItemID,
		event.ItemType,
		nullUUID(event.ApprovedID),
		nullUUID(event.OperatorID),
		event.ApprovalType,
		event.Notes,
		event.CreatedAt,
	)
	if err != nil {
		log.Error("failed to record approval",
			slog.String("error", err.Error()),
			slog.String("item_id", event.ItemID.String()))
		return MapError(err)
	}

	log.Info("approval recorded",
		slog.String("item_id", event.ItemID.String()),
		slog.String("approval_type", string(event.ApprovalType)))
	return nil
}

// GetByItem implements store.ApprovalStore.GetByItem
func (s *PostgresApprovalStore) GetByItem(ctx context.Context, itemID uuid.UUID) (*domain.ApprovalEvent, error) {
	e, err := scanApprovalEvent(s.db.QueryRowContext(ctx, getApprovalByItemQuery, itemID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrApprovalNotFound
		}
		return nil, MapError(err)
	}
	return e, nil
}

// ListByOperator implements store.ApprovalStore.ListByOperator
func (s *PostgresApprovalStore) ListByOperator(
	ctx context.Context,
	operatorID uuid.UUID,
	limit, offset int,
) ([]*domain.ApprovalEvent, error) {
	limit, offset = pageArgs(limit, offset)
	return s.list(ctx, listApprovalsByOperatorQuery, operatorID, limit, offset)
}

// ListByType implements store.ApprovalStore.ListByType
func (s *PostgresApprovalStore) ListByType(
	ctx context.Context,
	approvalType domain.ApprovalType,
	limit, offset int,
) ([]*domain.ApprovalEvent, error) {
	limit, offset = pageArgs(limit, offset)
	return s.list(ctx, listApprovalsByTypeQuery, approvalType, limit, offset)
}

func (s *PostgresApprovalStore) list(ctx context.Context, query string, args ...any) ([]*domain.ApprovalEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	events := []*domain.ApprovalEvent{}
	for rows.Next() {
		e, err := scanApprovalEvent(rows)
		if err != nil {
			return nil, MapError(err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return events, nil
}

// Stats implements store.ApprovalStore.Stats
func (s *PostgresApprovalStore) Stats(ctx context.Context) (*domain.ApprovalStats, error) {
	rows, err := s.db.QueryContext(ctx, approvalStatsQuery)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	stats := &domain.ApprovalStats{ByItemType: make(map[domain.ContentKind]int)}
	for rows.Next() {
		var (
			itemType     domain.ContentKind
			approvalType domain.ApprovalType
			count        int
		)
		if err := rows.Scan(&itemType, &approvalType, &count); err != nil {
			return nil, MapError(err)
		}
		stats.Total += count
		stats.ByItemType[itemType] += count
		switch approvalType {
		case domain.ApprovalManual:
			stats.Manual += count
		case domain.ApprovalAutomatic:
			stats.Automatic += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return stats, nil
}

// CreateDeprecation implements store.ApprovalStore.CreateDeprecation
func (s *PostgresApprovalStore) CreateDeprecation(ctx context.Context, d *domain.Deprecation) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	_, err := s.db.ExecContext(ctx, insertDeprecationQuery,
		d.ID,
		d.ApprovedID,
		d.Kind,
		nullUUID(d.ReplacedBy),
		d.Reason,
		d.OperatorID,
		d.CreatedAt,
	)
	if err != nil {
		log.Error("failed to record deprecation",
			slog.String("error", err.Error()),
			slog.String("approved_id", d.ApprovedID.String()))
		return MapError(err)
	}

	log.Info("approved record deprecated",
		slog.String("approved_id", d.ApprovedID.String()),
		slog.String("kind", string(d.Kind)))
	return nil
}
