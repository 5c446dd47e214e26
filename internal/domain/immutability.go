package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidDeprecation is returned for deprecations missing a reason or
// operator, or replacing a record with itself.
var ErrInvalidDeprecation = errors.New("invalid deprecation")

// MutationOperation names an attempted change to published content.
type MutationOperation string

// Mutation operations intercepted by the immutability guard.
const (
	MutationUpdate MutationOperation = "UPDATE"
	MutationDelete MutationOperation = "DELETE"
)

// ImmutabilityViolation records one blocked attempt to modify approved content.
type ImmutabilityViolation struct {
	ID                 uuid.UUID         `json:"id"`
	ItemID             uuid.UUID         `json:"item_id"`
	ItemType           ContentKind       `json:"item_type"`
	AttemptedOperation MutationOperation `json:"attempted_operation"`
	ActingUser         string            `json:"acting_user"`
	Details            json.RawMessage   `json:"details,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
}

// NewImmutabilityViolation builds a violation record stamped with the current time.
func NewImmutabilityViolation(
	itemID uuid.UUID,
	itemType ContentKind,
	op MutationOperation,
	actor string,
	details json.RawMessage,
) *ImmutabilityViolation {
	if actor == "" {
		actor = "unknown"
	}
	return &ImmutabilityViolation{
		ID:                 uuid.New(),
		ItemID:             itemID,
		ItemType:           itemType,
		AttemptedOperation: op,
		ActingUser:         actor,
		Details:            details,
		CreatedAt:          time.Now().UTC(),
	}
}

// Deprecation marks an approved record as superseded without modifying it.
// Corrections are a deprecation plus approval of a new record.
type Deprecation struct {
	ID         uuid.UUID   `json:"id"`
	ApprovedID uuid.UUID   `json:"approved_id"`
	Kind       ContentKind `json:"kind"`
	ReplacedBy *uuid.UUID  `json:"replaced_by,omitempty"`
	Reason     string      `json:"reason"`
	OperatorID uuid.UUID   `json:"operator_id"`
	CreatedAt  time.Time   `json:"created_at"`
}

// NewDeprecation builds a validated deprecation of approvedID.
func NewDeprecation(
	kind ContentKind,
	approvedID uuid.UUID,
	replacedBy *uuid.UUID,
	reason string,
	operatorID uuid.UUID,
) (*Deprecation, error) {
	d := &Deprecation{
		ID:         uuid.New(),
		ApprovedID: approvedID,
		Kind:       kind,
		ReplacedBy: replacedBy,
		Reason:     strings.TrimSpace(reason),
		OperatorID: operatorID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks the invariants of a deprecation.
func (d *Deprecation) Validate() error {
	switch {
	case d.ApprovedID == uuid.Nil:
		return ErrInvalidDeprecation
	case !d.Kind.Valid():
		return ErrInvalidKind
	case d.Reason == "":
		return ErrInvalidDeprecation
	case d.OperatorID == uuid.Nil:
		return ErrInvalidDeprecation
	case d.ReplacedBy != nil && *d.ReplacedBy == d.ApprovedID:
		return ErrInvalidDeprecation
	}
	return nil
}
