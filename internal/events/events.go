package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Curation event types.
const (
	// TypeItemEscalated is emitted when a candidate exhausts its validation
	// retries and enters the review queue.
	TypeItemEscalated = "item.escalated"

	// TypeItemApproved is emitted when an item reaches the published tier.
	TypeItemApproved = "item.approved"

	// TypeContentViolation is emitted when a mutation of approved content is blocked.
	TypeContentViolation = "content.violation"
)

// CurationEvent describes a committed curation outcome.
type CurationEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type is one of the Type* constants
	Type string `json:"type"`

	// ItemID is the lineage row the event is about
	ItemID uuid.UUID `json:"item_id"`

	// Payload contains event-specific data serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *CurationEvent) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewCurationEvent creates a new CurationEvent with the specified type, item and payload.
func NewCurationEvent(eventType string, itemID uuid.UUID, payload interface{}) (*CurationEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &CurationEvent{
		ID:        uuid.New(),
		Type:      eventType,
		ItemID:    itemID,
		Payload:   payloadBytes,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *CurationEvent) error
}

// HandlerFunc adapts a function to the EventHandler interface.
type HandlerFunc func(ctx context.Context, event *CurationEvent) error

// HandleEvent calls f(ctx, event).
func (f HandlerFunc) HandleEvent(ctx context.Context, event *CurationEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *CurationEvent) error
}
