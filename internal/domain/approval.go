package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ApprovalType distinguishes automatic promotion from human sign-off.
type ApprovalType string

// Approval types.
const (
	ApprovalAutomatic ApprovalType = "automatic"
	ApprovalManual    ApprovalType = "manual"
)

// Valid reports whether t is a known approval type.
func (t ApprovalType) Valid() bool {
	return t == ApprovalAutomatic || t == ApprovalManual
}

// ApprovalEvent is one immutable ledger entry for a promotion to the
// published tier. ItemID references the validated record that was approved;
// ApprovedID is the resulting published record when known.
type ApprovalEvent struct {
	ID           uuid.UUID    `json:"id"`
	ItemID       uuid.UUID    `json:"item_id"`
	ItemType     ContentKind  `json:"item_type"`
	ApprovedID   *uuid.UUID   `json:"approved_id,omitempty"`
	OperatorID   *uuid.UUID   `json:"operator_id,omitempty"`
	ApprovalType ApprovalType `json:"approval_type"`
	Notes        string       `json:"notes,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// NewApprovalEvent builds a validated ledger entry.
func NewApprovalEvent(
	itemID uuid.UUID,
	itemType ContentKind,
	approvalType ApprovalType,
	operatorID *uuid.UUID,
	notes string,
) (*ApprovalEvent, error) {
	e := &ApprovalEvent{
		ID:           uuid.New(),
		ItemID:       itemID,
		ItemType:     itemType,
		OperatorID:   operatorID,
		ApprovalType: approvalType,
		Notes:        notes,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Validate enforces manual ⇔ operator present.
func (e *ApprovalEvent) Validate() error {
	if e.ItemID == uuid.Nil {
		return fmt.Errorf("%w: item ID is required", ErrInvalidApproval)
	}
	if !e.ItemType.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidApproval, ErrInvalidKind)
	}
	hasOperator := e.OperatorID != nil && *e.OperatorID != uuid.Nil
	switch e.ApprovalType {
	case ApprovalManual:
		if !hasOperator {
			return fmt.Errorf("%w: manual approval requires an operator", ErrInvalidApproval)
		}
	case ApprovalAutomatic:
		if e.OperatorID != nil {
			return fmt.Errorf("%w: automatic approval cannot name an operator", ErrInvalidApproval)
		}
	default:
		return fmt.Errorf("%w: unknown approval type %q", ErrInvalidApproval, e.ApprovalType)
	}
	return nil
}

// ApprovalStats summarizes the ledger.
type ApprovalStats struct {
	Total      int                 `json:"total"`
	Manual     int                 `json:"manual"`
	Automatic  int                 `json:"automatic"`
	ByItemType map[ContentKind]int `json:"by_item_type"`
}
