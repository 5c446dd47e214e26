package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-curator/internal/domain"
	"github.com/phrazzld/scry-curator/internal/platform/logger"
	"github.com/phrazzld/scry-curator/internal/store"
)

const taskColumns = `
	id, pipeline_id, subject, item_id, item_kind, current_stage, document_id,
	task_type, status, depends_on, retry_count, error_message,
	started_at, completed_at, created_at, updated_at
`

const (
	insertPipelineQuery = `
		INSERT INTO document_pipelines
			(id, document_id, status, total_tasks, completed_tasks, failed_tasks,
			 progress_percentage, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	getPipelineQuery = `
		SELECT id, document_id, status, total_tasks, completed_tasks, failed_tasks,
			progress_percentage, created_at, updated_at
		FROM document_pipelines
		WHERE id = $1
	`
	lockPipelineQuery = `
		SELECT id FROM document_pipelines WHERE id = $1 FOR UPDATE
	`
	pipelineTaskStatusesQuery = `
		SELECT status FROM pipeline_tasks WHERE pipeline_id = $1
	`
	updatePipelineAggregateQuery = `
		UPDATE document_pipelines
		SET status = $2, total_tasks = $3, completed_tasks = $4, failed_tasks = $5,
			progress_percentage = $6, updated_at = $7
		WHERE id = $1
	`
	insertTaskQuery = `
		INSERT INTO pipeline_tasks
			(id, pipeline_id, subject, item_id, item_kind, current_stage, document_id,
			 task_type, status, depends_on, retry_count, error_message,
			 started_at, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	getTaskQuery = `
		SELECT ` + taskColumns + ` FROM pipeline_tasks WHERE id = $1
	`
	getTaskForUpdateQuery = `
		SELECT ` + taskColumns + ` FROM pipeline_tasks WHERE id = $1 FOR UPDATE
	`
	updateTaskStateQuery = `
		UPDATE pipeline_tasks
		SET status = $2, retry_count = $3, error_message = $4,
			started_at = $5, completed_at = $6, updated_at = $7
		WHERE id = $1
	`
	listPipelineTasksQuery = `
		SELECT ` + taskColumns + `
		FROM pipeline_tasks
		WHERE pipeline_id = $1
		ORDER BY created_at ASC, id ASC
	`
	listItemTasksQuery = `
		SELECT ` + taskColumns + `
		FROM pipeline_tasks
		WHERE subject = 'item' AND current_stage = $1 AND status = $2
		ORDER BY updated_at ASC, id ASC
		LIMIT $3 OFFSET $4
	`
	listStaleTasksQuery = `
		SELECT id
		FROM pipeline_tasks
		WHERE status = 'processing' AND started_at < $1
		ORDER BY started_at ASC
	`
	moveItemTasksQuery = `
		UPDATE pipeline_tasks
		SET item_id = $2, current_stage = $3, updated_at = NOW()
		WHERE subject = 'item' AND item_id = $1
	`
)

// PostgresPipelineStore implements the store.PipelineStore interface
// using a PostgreSQL database as the storage backend.
type PostgresPipelineStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresPipelineStore creates a new PostgreSQL implementation of the PipelineStore interface.
func NewPostgresPipelineStore(db store.DBTX, logger *slog.Logger) *PostgresPipelineStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresPipelineStore{
		db:     db,
		logger: logger.With(slog.String("component", "pipeline_store")),
	}
}

var _ store.PipelineStore = (*PostgresPipelineStore)(nil)

// WithTx implements store.PipelineStore.WithTx
func (s *PostgresPipelineStore) WithTx(tx *sql.Tx) store.PipelineStore {
	return &PostgresPipelineStore{db: tx, logger: s.logger}
}

// CreatePipeline implements store.PipelineStore.CreatePipeline
func (s *PostgresPipelineStore) CreatePipeline(ctx context.Context, p *domain.DocumentPipeline) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	_, err := s.db.ExecContext(ctx, insertPipelineQuery,
		p.ID, p.DocumentID, p.Status, p.TotalTasks, p.CompletedTasks, p.FailedTasks,
		p.ProgressPercentage, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		log.Error("failed to create pipeline",
			slog.String("error", err.Error()),
			slog.String("document_id", p.DocumentID))
		return MapError(err)
	}

	log.Info("pipeline created",
		slog.String("pipeline_id", p.ID.String()),
		slog.String("document_id", p.DocumentID))
	return nil
}

// GetPipeline implements store.PipelineStore.GetPipeline
func (s *PostgresPipelineStore) GetPipeline(ctx context.Context, id uuid.UUID) (*domain.DocumentPipeline, error) {
	var p domain.DocumentPipeline
	err := s.db.QueryRowContext(ctx, getPipelineQuery, id).Scan(
		&p.ID, &p.DocumentID, &p.Status, &p.TotalTasks, &p.CompletedTasks, &p.FailedTasks,
		&p.ProgressPercentage, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrPipelineNotFound
		}
		return nil, MapError(err)
	}
	return &p, nil
}

// LockPipeline implements store.PipelineStore.LockPipeline
func (s *PostgresPipelineStore) LockPipeline(ctx context.Context, id uuid.UUID) error {
	var locked uuid.UUID
	if err := s.db.QueryRowContext(ctx, lockPipelineQuery, id).Scan(&locked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrPipelineNotFound
		}
		return MapError(err)
	}
	return nil
}

// TaskStatuses implements store.PipelineStore.TaskStatuses
func (s *PostgresPipelineStore) TaskStatuses(ctx context.Context, pipelineID uuid.UUID) ([]domain.TaskStatus, error) {
	rows, err := s.db.QueryContext(ctx, pipelineTaskStatusesQuery, pipelineID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var statuses []domain.TaskStatus
	for rows.Next() {
		var status domain.TaskStatus
		if err := rows.Scan(&status); err != nil {
			return nil, MapError(err)
		}
		statuses = append(statuses, status)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return statuses, nil
}

// UpdateAggregate implements store.PipelineStore.UpdateAggregate
func (s *PostgresPipelineStore) UpdateAggregate(
	ctx context.Context,
	id uuid.UUID,
	agg domain.PipelineAggregate,
	at time.Time,
) error {
	result, err := s.db.ExecContext(ctx, updatePipelineAggregateQuery,
		id, agg.Status, agg.TotalTasks, agg.CompletedTasks, agg.FailedTasks,
		agg.ProgressPercentage, at.UTC())
	if err != nil {
		return MapError(err)
	}
	if err := CheckRowsAffected(result, store.ErrPipelineNotFound); err != nil {
		return err
	}

	logger.FromContextOrDefault(ctx, s.logger).Debug("pipeline aggregate updated",
		slog.String("pipeline_id", id.String()),
		slog.String("status", string(agg.Status)),
		slog.Float64("progress", agg.ProgressPercentage))
	return nil
}

// CreateTask implements store.PipelineStore.CreateTask
func (s *PostgresPipelineStore) CreateTask(ctx context.Context, t *domain.PipelineTask) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	var (
		itemID     uuid.NullUUID
		itemKind   sql.NullString
		stage      sql.NullString
		documentID sql.NullString
	)
	switch subj := t.Subject.(type) {
	case domain.ItemSubject:
		itemID = uuid.NullUUID{UUID: subj.ItemID, Valid: true}
		itemKind = sql.NullString{String: string(subj.ItemKind), Valid: true}
		stage = sql.NullString{String: string(subj.CurrentStage), Valid: true}
	case domain.DocumentSubject:
		documentID = sql.NullString{String: subj.DocumentID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, insertTaskQuery,
		t.ID,
		nullUUID(t.PipelineID),
		t.Subject.SubjectKind(),
		itemID,
		itemKind,
		stage,
		documentID,
		t.TaskType,
		t.Status,
		nullUUID(t.DependsOn),
		t.RetryCount,
		sql.NullString{String: t.ErrorMessage, Valid: t.ErrorMessage != ""},
		nullTime(t.StartedAt),
		nullTime(t.CompletedAt),
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create pipeline task",
			slog.String("error", err.Error()),
			slog.String("task_id", t.ID.String()))
		return MapError(err)
	}

	log.Debug("pipeline task created",
		slog.String("task_id", t.ID.String()),
		slog.String("task_type", string(t.TaskType)))
	return nil
}

func scanTask(row rowScanner) (*domain.PipelineTask, error) {
	var (
		t           domain.PipelineTask
		pipelineID  uuid.NullUUID
		subject     domain.SubjectKind
		itemID      uuid.NullUUID
		itemKind    sql.NullString
		stage       sql.NullString
		documentID  sql.NullString
		dependsOn   uuid.NullUUID
		errMessage  sql.NullString
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)
	if err := row.Scan(
		&t.ID, &pipelineID, &subject, &itemID, &itemKind, &stage, &documentID,
		&t.TaskType, &t.Status, &dependsOn, &t.RetryCount, &errMessage,
		&startedAt, &completedAt, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}

	switch subject {
	case domain.SubjectItem:
		t.Subject = domain.ItemSubject{
			ItemID:       itemID.UUID,
			ItemKind:     domain.ContentKind(itemKind.String),
			CurrentStage: domain.Stage(stage.String),
		}
	case domain.SubjectDocument:
		t.Subject = domain.DocumentSubject{DocumentID: documentID.String}
	default:
		return nil, fmt.Errorf("unknown task subject %q", subject)
	}

	t.PipelineID = uuidPtr(pipelineID)
	t.DependsOn = uuidPtr(dependsOn)
	t.ErrorMessage = errMessage.String
	t.StartedAt = timePtr(startedAt)
	t.CompletedAt = timePtr(completedAt)
	return &t, nil
}

// GetTask implements store.PipelineStore.GetTask
func (s *PostgresPipelineStore) GetTask(ctx context.Context, id uuid.UUID) (*domain.PipelineTask, error) {
	return s.getTask(ctx, getTaskQuery, id)
}

// GetTaskForUpdate implements store.PipelineStore.GetTaskForUpdate
func (s *PostgresPipelineStore) GetTaskForUpdate(ctx context.Context, id uuid.UUID) (*domain.PipelineTask, error) {
	return s.getTask(ctx, getTaskForUpdateQuery, id)
}

func (s *PostgresPipelineStore) getTask(ctx context.Context, query string, id uuid.UUID) (*domain.PipelineTask, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, MapError(err)
	}
	return t, nil
}

// UpdateTaskState implements store.PipelineStore.UpdateTaskState
func (s *PostgresPipelineStore) UpdateTaskState(ctx context.Context, t *domain.PipelineTask) error {
	result, err := s.db.ExecContext(ctx, updateTaskStateQuery,
		t.ID,
		t.Status,
		t.RetryCount,
		sql.NullString{String: t.ErrorMessage, Valid: t.ErrorMessage != ""},
		nullTime(t.StartedAt),
		nullTime(t.CompletedAt),
		t.UpdatedAt,
	)
	if err != nil {
		return MapError(err)
	}
	if err := CheckRowsAffected(result, store.ErrTaskNotFound); err != nil {
		return err
	}

	logger.FromContextOrDefault(ctx, s.logger).Debug("pipeline task updated",
		slog.String("task_id", t.ID.String()),
		slog.String("status", string(t.Status)),
		slog.Int("retry_count", t.RetryCount))
	return nil
}

// ListTasks implements store.PipelineStore.ListTasks
func (s *PostgresPipelineStore) ListTasks(ctx context.Context, pipelineID uuid.UUID) ([]*domain.PipelineTask, error) {
	return s.listTasks(ctx, listPipelineTasksQuery, pipelineID)
}

// ListItemTasks implements store.PipelineStore.ListItemTasks
func (s *PostgresPipelineStore) ListItemTasks(
	ctx context.Context,
	stage domain.Stage,
	status domain.TaskStatus,
	limit, offset int,
) ([]*domain.PipelineTask, error) {
	limit, offset = pageArgs(limit, offset)
	return s.listTasks(ctx, listItemTasksQuery, stage, status, limit, offset)
}

func (s *PostgresPipelineStore) listTasks(ctx context.Context, query string, args ...any) ([]*domain.PipelineTask, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	tasks := []*domain.PipelineTask{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, MapError(err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return tasks, nil
}

// ListStaleTaskIDs implements store.PipelineStore.ListStaleTaskIDs
func (s *PostgresPipelineStore) ListStaleTaskIDs(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, listStaleTasksQuery, cutoff.UTC())
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, MapError(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return ids, nil
}

// MoveItemTasks implements store.PipelineStore.MoveItemTasks
func (s *PostgresPipelineStore) MoveItemTasks(
	ctx context.Context,
	fromItemID, toItemID uuid.UUID,
	stage domain.Stage,
) (int64, error) {
	result, err := s.db.ExecContext(ctx, moveItemTasksQuery, fromItemID, toItemID, stage)
	if err != nil {
		return 0, MapError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
