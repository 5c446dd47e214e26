package service

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

// NewTaskRequest describes a task to add to the orchestrator.
type NewTaskRequest struct {
	// PipelineID groups the task under a document pipeline. Optional.
	PipelineID *uuid.UUID
	Subject    domain.TaskSubject
	TaskType   domain.TaskType
	// DependsOn names a task that must complete before this one may start.
	DependsOn *uuid.UUID
}

// PipelineService tracks item and document processing tasks and keeps each
// document pipeline's progress derived from its tasks.
type PipelineService interface {
	// CreatePipeline starts an empty pipeline for a source document.
	CreatePipeline(ctx context.Context, documentID string) (*domain.DocumentPipeline, error)

	// GetPipeline returns a pipeline with its derived progress.
	GetPipeline(ctx context.Context, id uuid.UUID) (*domain.DocumentPipeline, error)

	// AddTask creates a pending task.
	AddTask(ctx context.Context, req NewTaskRequest) (*domain.PipelineTask, error)

	// StartTask moves a pending task to processing once its dependency completed.
	StartTask(ctx context.Context, taskID uuid.UUID) (*domain.PipelineTask, error)

	// CompleteTask moves a processing task to completed.
	CompleteTask(ctx context.Context, taskID uuid.UUID) (*domain.PipelineTask, error)

	// FailTask moves a processing task to failed.
	FailTask(ctx context.Context, taskID uuid.UUID, message string) (*domain.PipelineTask, error)

	// RetryTask moves a failed task back to pending.
	RetryTask(ctx context.Context, taskID uuid.UUID) (*domain.PipelineTask, error)

	// GetTask returns a task.
	GetTask(ctx context.Context, taskID uuid.UUID) (*domain.PipelineTask, error)

	// ListTasks returns the tasks of a pipeline, oldest first.
	ListTasks(ctx context.Context, pipelineID uuid.UUID) ([]*domain.PipelineTask, error)

	// ListItemTasks returns item tasks at stage with status.
	ListItemTasks(
		ctx context.Context,
		stage domain.Stage,
		status domain.TaskStatus,
		limit, offset int,
	) ([]*domain.PipelineTask, error)

	// RecordEvent appends a producer-defined event to a task's stream.
	RecordEvent(
		ctx context.Context,
		taskID uuid.UUID,
		eventType domain.PipelineEventType,
		message string,
		metadata map[string]string,
	) (*domain.PipelineEvent, error)

	// ListEvents returns a task's events, oldest first.
	ListEvents(ctx context.Context, taskID uuid.UUID) ([]*domain.PipelineEvent, error)

	// ReclaimStale fails processing tasks started more than olderThan ago.
	// It returns the number of tasks failed.
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// pipelineServiceImpl implements the PipelineService interface
type pipelineServiceImpl struct {
	db            *sql.DB
	stageStore    store.StageStore
	pipelineStore store.PipelineStore
	eventStore    store.PipelineEventStore
	logger        *slog.Logger
	now           func() time.Time
}

// NewPipelineService creates a new PipelineService.
// It returns an error if any of the required dependencies are nil.
func NewPipelineService(
	db *sql.DB,
	stageStore store.StageStore,
	pipelineStore store.PipelineStore,
	eventStore store.PipelineEventStore,
	logger *slog.Logger,
) (PipelineService, error) {
	if err := requireDeps(
		dependency{"db", db == nil},
		dependency{"stageStore", stageStore == nil},
		dependency{"pipelineStore", pipelineStore == nil},
		dependency{"eventStore", eventStore == nil},
	); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &pipelineServiceImpl{
		db:            db,
		stageStore:    stageStore,
		pipelineStore: pipelineStore,
		eventStore:    eventStore,
		logger:        logger.With(slog.String("component", "pipeline_service")),
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// CreatePipeline implements PipelineService.CreatePipeline
func (s *pipelineServiceImpl) CreatePipeline(ctx context.Context, documentID string) (*domain.DocumentPipeline, error) {
	pipeline, err := domain.NewDocumentPipeline(documentID)
	if err != nil {
		return nil, err
	}
	if err := s.pipelineStore.CreatePipeline(ctx, pipeline); err != nil {
		return nil, NewCurationError("create_pipeline", "failed to save pipeline", err)
	}
	return pipeline, nil
}

// GetPipeline implements PipelineService.GetPipeline
func (s *pipelineServiceImpl) GetPipeline(ctx context.Context, id uuid.UUID) (*domain.DocumentPipeline, error) {
	pipeline, err := s.pipelineStore.GetPipeline(ctx, id)
	if err != nil {
		return nil, NewCurationError("get_pipeline", "failed to load pipeline", err)
	}
	return pipeline, nil
}

// AddTask implements PipelineService.AddTask
func (s *pipelineServiceImpl) AddTask(ctx context.Context, req NewTaskRequest) (*domain.PipelineTask, error) {
	task, err := domain.NewPipelineTask(req.PipelineID, req.Subject, req.TaskType, req.DependsOn)
	if err != nil {
		return nil, err
	}

	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		pipelines := s.pipelineStore.WithTx(tx)
		if task.PipelineID != nil {
			if err := pipelines.LockPipeline(ctx, *task.PipelineID); err != nil {
				return err
			}
		}
		if task.DependsOn != nil {
			if _, err := pipelines.GetTask(ctx, *task.DependsOn); err != nil {
				return fmt.Errorf("predecessor: %w", err)
			}
		}
		if item, ok := task.Item(); ok {
			if err := s.checkItemStage(ctx, tx, item); err != nil {
				return err
			}
		}
		if err := pipelines.CreateTask(ctx, task); err != nil {
			return err
		}
		event := domain.NewPipelineEvent(task, domain.EventTaskCreated, "", nil)
		if err := s.eventStore.WithTx(tx).RecordEvent(ctx, event); err != nil {
			return err
		}
		return s.recompute(ctx, pipelines, task.PipelineID)
	})
	if err != nil {
		return nil, NewCurationError("add_task", "failed to add task", err)
	}
	return task, nil
}

// checkItemStage confirms the subject names the stage row that holds the
// item now, so stage-filtered task queries see the item where it really is.
func (s *pipelineServiceImpl) checkItemStage(ctx context.Context, tx *sql.Tx, item domain.ItemSubject) error {
	stage, kind, err := s.stageStore.WithTx(tx).CurrentStage(ctx, item.ItemID)
	if err != nil {
		return fmt.Errorf("item %s: %w", item.ItemID, err)
	}
	if stage != item.CurrentStage || kind != item.ItemKind {
		return fmt.Errorf("%w: item %s is a %s %s, not a %s %s", domain.ErrInvalidTaskSubject,
			item.ItemID, stage, kind, item.CurrentStage, item.ItemKind)
	}
	return nil
}

// StartTask implements PipelineService.StartTask
func (s *pipelineServiceImpl) StartTask(ctx context.Context, taskID uuid.UUID) (*domain.PipelineTask, error) {
	return s.advance(ctx, "start_task", taskID, domain.EventTaskStarted,
		func(task *domain.PipelineTask, predecessor domain.TaskStatus, at time.Time) (string, error) {
			return "", task.Start(predecessor, at)
		})
}

// CompleteTask implements PipelineService.CompleteTask
func (s *pipelineServiceImpl) CompleteTask(ctx context.Context, taskID uuid.UUID) (*domain.PipelineTask, error) {
	return s.advance(ctx, "complete_task", taskID, domain.EventTaskCompleted,
		func(task *domain.PipelineTask, _ domain.TaskStatus, at time.Time) (string, error) {
			return "", task.Complete(at)
		})
}

// FailTask implements PipelineService.FailTask
func (s *pipelineServiceImpl) FailTask(
	ctx context.Context,
	taskID uuid.UUID,
	message string,
) (*domain.PipelineTask, error) {
	return s.advance(ctx, "fail_task", taskID, domain.EventTaskFailed,
		func(task *domain.PipelineTask, _ domain.TaskStatus, at time.Time) (string, error) {
			return message, task.Fail(message, at)
		})
}

// RetryTask implements PipelineService.RetryTask
func (s *pipelineServiceImpl) RetryTask(ctx context.Context, taskID uuid.UUID) (*domain.PipelineTask, error) {
	return s.advance(ctx, "retry_task", taskID, domain.EventTaskRetried,
		func(task *domain.PipelineTask, _ domain.TaskStatus, at time.Time) (string, error) {
			return fmt.Sprintf("retry %d", task.RetryCount+1), task.Retry(at)
		})
}

// transitionFn applies one status change to a locked task and returns the
// event message.
type transitionFn func(task *domain.PipelineTask, predecessor domain.TaskStatus, at time.Time) (string, error)

// advance applies fn to the task under the pipeline lock, writes the task,
// its event and the recomputed pipeline aggregate in one transaction. The
// pipeline row is locked before the task row so concurrent status changes
// of sibling tasks serialize on the pipeline.
func (s *pipelineServiceImpl) advance(
	ctx context.Context,
	operation string,
	taskID uuid.UUID,
	eventType domain.PipelineEventType,
	fn transitionFn,
) (*domain.PipelineTask, error) {
	var task *domain.PipelineTask
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		pipelines := s.pipelineStore.WithTx(tx)

		current, err := pipelines.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if current.PipelineID != nil {
			if err := pipelines.LockPipeline(ctx, *current.PipelineID); err != nil {
				return err
			}
		}
		task, err = pipelines.GetTaskForUpdate(ctx, taskID)
		if err != nil {
			return err
		}

		var predecessor domain.TaskStatus
		if task.DependsOn != nil {
			dep, err := pipelines.GetTask(ctx, *task.DependsOn)
			if err != nil {
				return fmt.Errorf("predecessor: %w", err)
			}
			predecessor = dep.Status
		}

		message, err := fn(task, predecessor, s.now())
		if err != nil {
			return err
		}
		if err := pipelines.UpdateTaskState(ctx, task); err != nil {
			return err
		}
		event := domain.NewPipelineEvent(task, eventType, message, map[string]string{
			"status":      string(task.Status),
			"retry_count": fmt.Sprint(task.RetryCount),
		})
		if err := s.eventStore.WithTx(tx).RecordEvent(ctx, event); err != nil {
			return err
		}
		return s.recompute(ctx, pipelines, task.PipelineID)
	})
	if err != nil {
		return nil, NewCurationError(operation, "failed to change task status", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Debug("task status changed",
		slog.String("task_id", taskID.String()),
		slog.String("status", string(task.Status)))
	return task, nil
}

// recompute rederives the pipeline aggregate from every task status.
func (s *pipelineServiceImpl) recompute(
	ctx context.Context,
	pipelines store.PipelineStore,
	pipelineID *uuid.UUID,
) error {
	if pipelineID == nil {
		return nil
	}
	statuses, err := pipelines.TaskStatuses(ctx, *pipelineID)
	if err != nil {
		return err
	}
	return pipelines.UpdateAggregate(ctx, *pipelineID, domain.Aggregate(statuses), s.now())
}

// GetTask implements PipelineService.GetTask
func (s *pipelineServiceImpl) GetTask(ctx context.Context, taskID uuid.UUID) (*domain.PipelineTask, error) {
	task, err := s.pipelineStore.GetTask(ctx, taskID)
	if err != nil {
		return nil, NewCurationError("get_task", "failed to load task", err)
	}
	return task, nil
}

// ListTasks implements PipelineService.ListTasks
func (s *pipelineServiceImpl) ListTasks(ctx context.Context, pipelineID uuid.UUID) ([]*domain.PipelineTask, error) {
	tasks, err := s.pipelineStore.ListTasks(ctx, pipelineID)
	if err != nil {
		return nil, NewCurationError("list_tasks", "failed to list pipeline tasks", err)
	}
	return tasks, nil
}

// ListItemTasks implements PipelineService.ListItemTasks
func (s *pipelineServiceImpl) ListItemTasks(
	ctx context.Context,
	stage domain.Stage,
	status domain.TaskStatus,
	limit, offset int,
) ([]*domain.PipelineTask, error) {
	if !stage.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStage, stage)
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidTaskTransition, status)
	}
	tasks, err := s.pipelineStore.ListItemTasks(ctx, stage, status, limit, offset)
	if err != nil {
		return nil, NewCurationError("list_item_tasks", "failed to list item tasks", err)
	}
	return tasks, nil
}

// RecordEvent implements PipelineService.RecordEvent
func (s *pipelineServiceImpl) RecordEvent(
	ctx context.Context,
	taskID uuid.UUID,
	eventType domain.PipelineEventType,
	message string,
	metadata map[string]string,
) (*domain.PipelineEvent, error) {
	if eventType == "" {
		return nil, &CurationError{Operation: "record_event", Message: "event type is required"}
	}
	task, err := s.pipelineStore.GetTask(ctx, taskID)
	if err != nil {
		return nil, NewCurationError("record_event", "failed to load task", err)
	}
	event := domain.NewPipelineEvent(task, eventType, message, metadata)
	if err := s.eventStore.RecordEvent(ctx, event); err != nil {
		return nil, NewCurationError("record_event", "failed to record event", err)
	}
	return event, nil
}

// ListEvents implements PipelineService.ListEvents
func (s *pipelineServiceImpl) ListEvents(ctx context.Context, taskID uuid.UUID) ([]*domain.PipelineEvent, error) {
	list, err := s.eventStore.ListEvents(ctx, taskID)
	if err != nil {
		return nil, NewCurationError("list_events", "failed to list task events", err)
	}
	return list, nil
}

// ReclaimStale implements PipelineService.ReclaimStale
func (s *pipelineServiceImpl) ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	ids, err := s.pipelineStore.ListStaleTaskIDs(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, NewCurationError("reclaim_stale", "failed to list stale tasks", err)
	}

	reclaimed := 0
	message := fmt.Sprintf("no progress for %s", olderThan)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return reclaimed, err
		}
		_, err := s.FailTask(ctx, id, message)
		switch {
		case err == nil:
			reclaimed++
		case errors.Is(err, domain.ErrInvalidTaskTransition):
			// Finished between the listing and the lock.
		default:
			log.Error("failed to reclaim stale task",
				slog.String("task_id", id.String()),
				slog.String("error", err.Error()))
		}
	}

	if reclaimed > 0 {
		log.Warn("reclaimed stale tasks", slog.Int("count", reclaimed))
	}
	return reclaimed, nil
}
