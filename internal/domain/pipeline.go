package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the state of a pipeline task.
type TaskStatus string

// Task status values.
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Active reports whether a task in status s still has work outstanding.
func (s TaskStatus) Active() bool {
	return s == TaskStatusPending || s == TaskStatusProcessing
}

// TaskType names the kind of work a task performs.
type TaskType string

// Task types.
const (
	TaskTypeExtract   TaskType = "extract"
	TaskTypeChunk     TaskType = "chunk"
	TaskTypeMap       TaskType = "map"
	TaskTypeTransform TaskType = "transform"
	TaskTypeValidate  TaskType = "validate"
	TaskTypeApprove   TaskType = "approve"
)

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeExtract, TaskTypeChunk, TaskTypeMap, TaskTypeTransform, TaskTypeValidate, TaskTypeApprove:
		return true
	default:
		return false
	}
}

// Task validation errors.
var (
	ErrEmptyTaskID        = errors.New("task ID cannot be empty")
	ErrInvalidTaskType    = errors.New("invalid task type")
	ErrInvalidTaskSubject = errors.New("invalid task subject")
	ErrSelfDependency     = errors.New("task cannot depend on itself")
)

// SubjectKind discriminates the TaskSubject union in storage.
type SubjectKind string

// Subject kinds.
const (
	SubjectItem     SubjectKind = "item"
	SubjectDocument SubjectKind = "document"
)

// TaskSubject is what a task operates on: a single content item or a whole
// document. Implemented only by ItemSubject and DocumentSubject.
type TaskSubject interface {
	SubjectKind() SubjectKind
	validate() error
}

// ItemSubject is a task operating on one content item. ItemID points at the
// row of the item's current lineage stage.
type ItemSubject struct {
	ItemID       uuid.UUID   `json:"item_id"`
	ItemKind     ContentKind `json:"item_kind"`
	CurrentStage Stage       `json:"current_stage"`
}

// SubjectKind implements TaskSubject.
func (ItemSubject) SubjectKind() SubjectKind { return SubjectItem }

func (s ItemSubject) validate() error {
	if s.ItemID == uuid.Nil {
		return fmt.Errorf("%w: item ID is required", ErrInvalidTaskSubject)
	}
	if !s.ItemKind.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidTaskSubject, ErrInvalidKind)
	}
	if !s.CurrentStage.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidTaskSubject, ErrInvalidStage)
	}
	return nil
}

// DocumentSubject is a task operating on a source document.
type DocumentSubject struct {
	DocumentID string `json:"document_id"`
}

// SubjectKind implements TaskSubject.
func (DocumentSubject) SubjectKind() SubjectKind { return SubjectDocument }

func (s DocumentSubject) validate() error {
	if strings.TrimSpace(s.DocumentID) == "" {
		return fmt.Errorf("%w: document ID is required", ErrInvalidTaskSubject)
	}
	return nil
}

// PipelineTask is one unit of tracked work. Item and document tasks share the
// same state machine and aggregate into a DocumentPipeline when PipelineID is set.
type PipelineTask struct {
	ID           uuid.UUID   `json:"id"`
	PipelineID   *uuid.UUID  `json:"pipeline_id,omitempty"`
	Subject      TaskSubject `json:"subject"`
	TaskType     TaskType    `json:"task_type"`
	Status       TaskStatus  `json:"status"`
	DependsOn    *uuid.UUID  `json:"depends_on,omitempty"`
	RetryCount   int         `json:"retry_count"`
	ErrorMessage string      `json:"error_message,omitempty"`
	StartedAt    *time.Time  `json:"started_at,omitempty"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// NewPipelineTask creates a pending task.
func NewPipelineTask(
	pipelineID *uuid.UUID,
	subject TaskSubject,
	taskType TaskType,
	dependsOn *uuid.UUID,
) (*PipelineTask, error) {
	now := time.Now().UTC()
	t := &PipelineTask{
		ID:         uuid.New(),
		PipelineID: pipelineID,
		Subject:    subject,
		TaskType:   taskType,
		Status:     TaskStatusPending,
		DependsOn:  dependsOn,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks structural invariants of the task.
func (t *PipelineTask) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}
	if t.Subject == nil {
		return ErrInvalidTaskSubject
	}
	if err := t.Subject.validate(); err != nil {
		return err
	}
	if !t.TaskType.Valid() {
		return ErrInvalidTaskType
	}
	if !t.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTaskTransition, t.Status)
	}
	if t.DependsOn != nil && *t.DependsOn == t.ID {
		return ErrSelfDependency
	}
	return nil
}

// Item returns the item subject, if the task has one.
func (t *PipelineTask) Item() (ItemSubject, bool) {
	s, ok := t.Subject.(ItemSubject)
	return s, ok
}

// Start moves a pending task to processing. predecessor is the status of the
// task this one depends on, or empty when there is none.
func (t *PipelineTask) Start(predecessor TaskStatus, at time.Time) error {
	if t.Status != TaskStatusPending {
		return fmt.Errorf("%w: cannot start task in status %s", ErrInvalidTaskTransition, t.Status)
	}
	if t.DependsOn != nil && predecessor != TaskStatusCompleted {
		return fmt.Errorf("%w: predecessor %s is %s", ErrDependencyNotMet, t.DependsOn, predecessor)
	}
	at = at.UTC()
	t.Status = TaskStatusProcessing
	t.StartedAt = &at
	t.UpdatedAt = at
	return nil
}

// Complete moves a processing task to completed.
func (t *PipelineTask) Complete(at time.Time) error {
	if t.Status != TaskStatusProcessing {
		return fmt.Errorf("%w: cannot complete task in status %s", ErrInvalidTaskTransition, t.Status)
	}
	at = at.UTC()
	t.Status = TaskStatusCompleted
	t.CompletedAt = &at
	t.UpdatedAt = at
	return nil
}

// Fail moves a processing task to failed with an error message.
func (t *PipelineTask) Fail(message string, at time.Time) error {
	if t.Status != TaskStatusProcessing {
		return fmt.Errorf("%w: cannot fail task in status %s", ErrInvalidTaskTransition, t.Status)
	}
	at = at.UTC()
	t.Status = TaskStatusFailed
	t.ErrorMessage = message
	t.CompletedAt = &at
	t.UpdatedAt = at
	return nil
}

// Retry moves a failed task back to pending, incrementing RetryCount and
// clearing the error.
func (t *PipelineTask) Retry(at time.Time) error {
	if t.Status != TaskStatusFailed {
		return fmt.Errorf("%w: only failed tasks can be retried, task is %s", ErrInvalidTaskTransition, t.Status)
	}
	t.Status = TaskStatusPending
	t.RetryCount++
	t.ErrorMessage = ""
	t.StartedAt = nil
	t.CompletedAt = nil
	t.UpdatedAt = at.UTC()
	return nil
}

// PipelineStatus is the derived status of a DocumentPipeline.
type PipelineStatus string

// Pipeline status values.
const (
	PipelineStatusPending    PipelineStatus = "pending"
	PipelineStatusProcessing PipelineStatus = "processing"
	PipelineStatusCompleted  PipelineStatus = "completed"
	PipelineStatusFailed     PipelineStatus = "failed"
)

// PipelineAggregate holds the fields of a pipeline derived from its tasks.
type PipelineAggregate struct {
	TotalTasks         int            `json:"total_tasks"`
	CompletedTasks     int            `json:"completed_tasks"`
	FailedTasks        int            `json:"failed_tasks"`
	ProgressPercentage float64        `json:"progress_percentage"`
	Status             PipelineStatus `json:"status"`
}

// Aggregate derives pipeline progress from the statuses of all its tasks.
// An empty pipeline is pending at 0%.
func Aggregate(statuses []TaskStatus) PipelineAggregate {
	agg := PipelineAggregate{TotalTasks: len(statuses)}
	active := 0
	for _, s := range statuses {
		switch s {
		case TaskStatusCompleted:
			agg.CompletedTasks++
		case TaskStatusFailed:
			agg.FailedTasks++
		default:
			active++
		}
	}

	if agg.TotalTasks > 0 {
		agg.ProgressPercentage = float64(agg.CompletedTasks) * 100 / float64(agg.TotalTasks)
	}

	switch {
	case agg.TotalTasks == 0:
		// A pipeline with no tasks yet has nothing finished; it stays pending until work is added.
		agg.Status = PipelineStatusPending
	case agg.FailedTasks > 0:
		agg.Status = PipelineStatusFailed
	case active == 0:
		agg.Status = PipelineStatusCompleted
	default:
		agg.Status = PipelineStatusProcessing
	}
	return agg
}

// DocumentPipeline groups the tasks processing one document. Its aggregate
// fields are only ever written from Aggregate.
type DocumentPipeline struct {
	ID         uuid.UUID `json:"id"`
	DocumentID string    `json:"document_id"`
	PipelineAggregate
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDocumentPipeline creates an empty pipeline for documentID.
func NewDocumentPipeline(documentID string) (*DocumentPipeline, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, fmt.Errorf("%w: document ID is required", ErrInvalidTaskSubject)
	}
	now := time.Now().UTC()
	return &DocumentPipeline{
		ID:                uuid.New(),
		DocumentID:        documentID,
		PipelineAggregate: Aggregate(nil),
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}
