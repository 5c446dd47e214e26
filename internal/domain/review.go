package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ReviewDecision is the terminal outcome of a manual review.
type ReviewDecision string

// Review decisions.
const (
	ReviewApprove ReviewDecision = "approve"
	ReviewReject  ReviewDecision = "reject"
	ReviewRevise  ReviewDecision = "revise"
)

// ErrInvalidDecision is returned for unknown review decisions.
var ErrInvalidDecision = errors.New("invalid review decision")

// Valid reports whether d is a known decision.
func (d ReviewDecision) Valid() bool {
	switch d {
	case ReviewApprove, ReviewReject, ReviewRevise:
		return true
	default:
		return false
	}
}

// ReviewEntry is an item waiting for (or having received) manual review.
// At most one unresolved entry exists per item.
type ReviewEntry struct {
	ID         uuid.UUID      `json:"id"`
	ItemID     uuid.UUID      `json:"item_id"`
	ItemType   ContentKind    `json:"item_type"`
	Priority   int            `json:"priority"`
	Reason     string         `json:"reason,omitempty"`
	AssignedTo *uuid.UUID     `json:"assigned_to,omitempty"`
	AssignedAt *time.Time     `json:"assigned_at,omitempty"`
	ReviewedAt *time.Time     `json:"reviewed_at,omitempty"`
	Decision   ReviewDecision `json:"decision,omitempty"`
	Notes      string         `json:"notes,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// NewReviewEntry creates an unresolved review entry for itemID.
func NewReviewEntry(itemID uuid.UUID, itemType ContentKind, priority int, reason string) (*ReviewEntry, error) {
	if itemID == uuid.Nil {
		return nil, ErrEmptyRecordID
	}
	if !itemType.Valid() {
		return nil, ErrInvalidKind
	}
	if priority <= 0 {
		priority = DefaultReviewPriority
	}
	return &ReviewEntry{
		ID:        uuid.New(),
		ItemID:    itemID,
		ItemType:  itemType,
		Priority:  priority,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Resolved reports whether the entry already carries a decision.
func (e *ReviewEntry) Resolved() bool {
	return e.ReviewedAt != nil
}

// Resolve records the terminal decision. A second call fails with
// ErrAlreadyResolved.
func (e *ReviewEntry) Resolve(decision ReviewDecision, notes string, at time.Time) error {
	if !decision.Valid() {
		return ErrInvalidDecision
	}
	if e.Resolved() {
		return ErrAlreadyResolved
	}
	at = at.UTC()
	e.ReviewedAt = &at
	e.Decision = decision
	e.Notes = notes
	return nil
}
