package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-curator/internal/domain"
)

// PipelineStore persists document pipelines and their tasks.
type PipelineStore interface {
	// CreatePipeline inserts an empty pipeline.
	CreatePipeline(ctx context.Context, pipeline *domain.DocumentPipeline) error

	// GetPipeline retrieves a pipeline with its stored aggregate.
	// Returns ErrPipelineNotFound if it does not exist.
	GetPipeline(ctx context.Context, id uuid.UUID) (*domain.DocumentPipeline, error)

	// LockPipeline takes a row lock on the pipeline for the rest of the transaction.
	// Returns ErrPipelineNotFound if it does not exist.
	LockPipeline(ctx context.Context, id uuid.UUID) error

	// TaskStatuses returns the status of every task in the pipeline.
	TaskStatuses(ctx context.Context, pipelineID uuid.UUID) ([]domain.TaskStatus, error)

	// UpdateAggregate overwrites the derived fields of the pipeline.
	UpdateAggregate(ctx context.Context, id uuid.UUID, agg domain.PipelineAggregate, at time.Time) error

	// CreateTask inserts a task.
	// Returns ErrInvalidEntity if the pipeline or predecessor does not exist.
	CreateTask(ctx context.Context, task *domain.PipelineTask) error

	// GetTask retrieves a task.
	// Returns ErrTaskNotFound if it does not exist.
	GetTask(ctx context.Context, id uuid.UUID) (*domain.PipelineTask, error)

	// GetTaskForUpdate retrieves a task and locks its row.
	// Returns ErrTaskNotFound if it does not exist.
	GetTaskForUpdate(ctx context.Context, id uuid.UUID) (*domain.PipelineTask, error)

	// UpdateTaskState persists the mutable state of task: status, retry
	// count, error message and timestamps.
	// Returns ErrTaskNotFound if it does not exist.
	UpdateTaskState(ctx context.Context, task *domain.PipelineTask) error

	// ListTasks returns the tasks of a pipeline, oldest first.
	ListTasks(ctx context.Context, pipelineID uuid.UUID) ([]*domain.PipelineTask, error)

	// ListItemTasks returns item tasks at stage with status.
	ListItemTasks(
		ctx context.Context,
		stage domain.Stage,
		status domain.TaskStatus,
		limit, offset int,
	) ([]*domain.PipelineTask, error)

	// ListStaleTaskIDs returns processing tasks started before cutoff.
	ListStaleTaskIDs(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)

	// MoveItemTasks repoints item tasks from one lineage row to its
	// successor and records the new stage. It returns the number moved.
	MoveItemTasks(ctx context.Context, fromItemID, toItemID uuid.UUID, stage domain.Stage) (int64, error)

	// WithTx returns a new PipelineStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) PipelineStore
}

// PipelineEventStore persists the per-task event stream.
type PipelineEventStore interface {
	// RecordEvent appends an event.
	// Returns ErrInvalidEntity if the task does not exist.
	RecordEvent(ctx context.Context, event *domain.PipelineEvent) error

	// ListEvents returns a task's events oldest first.
	ListEvents(ctx context.Context, taskID uuid.UUID) ([]*domain.PipelineEvent, error)

	// WithTx returns a new PipelineEventStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) PipelineEventStore
}
