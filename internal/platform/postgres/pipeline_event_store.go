package postgres

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-curator/internal/domain"
	"github.com/phrazzld/scry-curator/internal/platform/logger"
	"github.com/phrazzld/scry-curator/internal/store"
)

const (
	insertPipelineEventQuery = `
		INSERT INTO pipeline_events (id, task_id, pipeline_id, event_type, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	listPipelineEventsQuery = `
		SELECT id, task_id, pipeline_id, event_type, message, metadata, created_at
		FROM pipeline_events
		WHERE task_id = $1
		ORDER BY created_at ASC, id ASC
	`
)

// PostgresPipelineEventStore implements the store.PipelineEventStore interface
// using a PostgreSQL database as the storage backend.
type PostgresPipelineEventStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresPipelineEventStore creates a new PostgreSQL implementation of the PipelineEventStore interface.
func NewPostgresPipelineEventStore(db store.DBTX, logger *slog.Logger) *PostgresPipelineEventStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresPipelineEventStore{
		db:     db,
		logger: logger.With(slog.String("component", "pipeline_event_store")),
	}
}

var _ store.PipelineEventStore = (*PostgresPipelineEventStore)(nil)

// WithTx implements store.PipelineEventStore.WithTx
func (s *PostgresPipelineEventStore) WithTx(tx *sql.Tx) store.PipelineEventStore {
	return &PostgresPipelineEventStore{db: tx, logger: s.logger}
}

// RecordEvent implements store.PipelineEventStore.RecordEvent
func (s *PostgresPipelineEventStore) RecordEvent(ctx context.Context, e *domain.PipelineEvent) error {
	metadata, err := encodeMetadata(e.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, insertPipelineEventQuery,
		e.ID, e.TaskID, nullUUID(e.PipelineID), e.EventType, e.Message, metadata, e.CreatedAt)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to record pipeline event",
			slog.String("error", err.Error()),
			slog.String("task_id", e.TaskID.String()),
			slog.String("event_type", string(e.EventType)))
		return MapError(err)
	}
	return nil
}

// ListEvents implements store.PipelineEventStore.ListEvents
func (s *PostgresPipelineEventStore) ListEvents(ctx context.Context, taskID uuid.UUID) ([]*domain.PipelineEvent, error) {
	rows, err := s.db.QueryContext(ctx, listPipelineEventsQuery, taskID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	events := []*domain.PipelineEvent{}
	for rows.Next() {
		var (
			e          domain.PipelineEvent
			pipelineID uuid.NullUUID
			metadata   []byte
		)
		if err := rows.Scan(&e.ID, &e.TaskID, &pipelineID, &e.EventType, &e.Message, &metadata, &e.CreatedAt); err != nil {
			return nil, MapError(err)
		}
		e.PipelineID = uuidPtr(pipelineID)
		if e.Metadata, err = decodeMetadata(metadata); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return events, nil
}
