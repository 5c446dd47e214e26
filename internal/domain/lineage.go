package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Validation errors for lineage records.
var (
	ErrEmptyRecordID  = errors.New("record ID cannot be empty")
	ErrEmptyParentRef = errors.New("non-draft record must reference its predecessor")
	ErrDraftHasParent = errors.New("draft record cannot reference a predecessor")
	ErrEmptyPayload   = errors.New("record payload cannot be empty")
)

// StageRecord is one row of an item's lineage. Every non-draft record carries
// ParentID, the identifier of the row it was promoted from in the previous stage.
// Records are never edited or deleted once written.
type StageRecord struct {
	ID        uuid.UUID       `json:"id"`
	Stage     Stage           `json:"stage"`
	Kind      ContentKind     `json:"kind"`
	ParentID  uuid.UUID       `json:"parent_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Source    string          `json:"source,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewDraft creates a draft record for payload produced by ingestion or an operator.
func NewDraft(kind ContentKind, payload json.RawMessage, source string) (*StageRecord, error) {
	r := &StageRecord{
		ID:        uuid.New(),
		Stage:     StageDraft,
		Kind:      kind,
		Payload:   payload,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Promote builds the record for the next stage, referencing r as its parent.
// The payload is copied as given; callers supply a normalized payload when
// the destination requires one.
func (r *StageRecord) Promote(payload json.RawMessage) (*StageRecord, error) {
	next, ok := r.Stage.Next()
	if !ok {
		return nil, ErrInvalidTransition
	}
	child := &StageRecord{
		ID:        uuid.New(),
		Stage:     next,
		Kind:      r.Kind,
		ParentID:  r.ID,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := child.Validate(); err != nil {
		return nil, err
	}
	return child, nil
}

// Validate checks the structural invariants of a lineage record.
func (r *StageRecord) Validate() error {
	if r.ID == uuid.Nil {
		return ErrEmptyRecordID
	}
	if !r.Stage.Valid() {
		return ErrInvalidStage
	}
	if !r.Kind.Valid() {
		return ErrInvalidKind
	}
	if len(r.Payload) == 0 {
		return ErrEmptyPayload
	}
	if !json.Valid(r.Payload) {
		return ErrInvalidPayload
	}
	if r.Stage == StageDraft && r.ParentID != uuid.Nil {
		return ErrDraftHasParent
	}
	if r.Stage != StageDraft && r.ParentID == uuid.Nil {
		return ErrEmptyParentRef
	}
	return nil
}

// StateTransitionEvent is the audit row written alongside every promotion.
type StateTransitionEvent struct {
	ID        uuid.UUID         `json:"id"`
	ItemID    uuid.UUID         `json:"item_id"`
	SourceID  uuid.UUID         `json:"source_id"`
	Kind      ContentKind       `json:"kind"`
	FromStage Stage             `json:"from_stage"`
	ToStage   Stage             `json:"to_stage"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Lineage is the reference chain of an item, ordered from draft onwards.
type Lineage []*StageRecord

// Complete reports whether the chain starts at a draft and every link
// references the record immediately before it.
func (l Lineage) Complete() bool {
	if len(l) == 0 || l[0].Stage != StageDraft {
		return false
	}
	for i := 1; i < len(l); i++ {
		if l[i].ParentID != l[i-1].ID {
			return false
		}
		if next, _ := l[i-1].Stage.Next(); next != l[i].Stage {
			return false
		}
	}
	return true
}

// Head returns the most advanced record of the chain.
func (l Lineage) Head() *StageRecord {
	if len(l) == 0 {
		return nil
	}
	return l[len(l)-1]
}
