package domain

import (
	"time"

	"github.com/google/uuid"
)

// PipelineEventType names an entry in a task's event stream.
type PipelineEventType string

// Event types written by the orchestrator. Producers may record their own types.
const (
	EventTaskCreated   PipelineEventType = "task.created"
	EventTaskStarted   PipelineEventType = "task.started"
	EventTaskCompleted PipelineEventType = "task.completed"
	EventTaskFailed    PipelineEventType = "task.failed"
	EventTaskRetried   PipelineEventType = "task.retried"
)

// PipelineEvent is one timestamped entry in a task's event stream.
type PipelineEvent struct {
	ID         uuid.UUID         `json:"id"`
	TaskID     uuid.UUID         `json:"task_id"`
	PipelineID *uuid.UUID        `json:"pipeline_id,omitempty"`
	EventType  PipelineEventType `json:"event_type"`
	Message    string            `json:"message,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// NewPipelineEvent builds an event for task.
func NewPipelineEvent(task *PipelineTask, eventType PipelineEventType, message string, metadata map[string]string) *PipelineEvent {
	return &PipelineEvent{
		ID:         uuid.New(),
		TaskID:     task.ID,
		PipelineID: task.PipelineID,
		EventType:  eventType,
		Message:    message,
		Metadata:   metadata,
		CreatedAt:  time.Now().UTC(),
	}
}
