package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an insert collides with a unique constraint,
	// including a concurrent promotion of the same source row.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored, or violates a foreign key or check constraint.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrImmutable is returned when the database rejects a write to approved content.
	ErrImmutable = errors.New("immutable entity")

	// Entity-specific "not found" errors

	// ErrRecordNotFound indicates that no lineage row exists for the given stage, kind and ID.
	ErrRecordNotFound = fmt.Errorf("%w: stage record", ErrNotFound)

	// ErrReviewEntryNotFound indicates that the item has no review queue entry.
	ErrReviewEntryNotFound = fmt.Errorf("%w: review entry", ErrNotFound)

	// ErrApprovalNotFound indicates that no approval event exists for the item.
	ErrApprovalNotFound = fmt.Errorf("%w: approval event", ErrNotFound)

	// ErrPipelineNotFound indicates that the document pipeline does not exist.
	ErrPipelineNotFound = fmt.Errorf("%w: pipeline", ErrNotFound)

	// ErrTaskNotFound indicates that the pipeline task does not exist.
	ErrTaskNotFound = fmt.Errorf("%w: pipeline task", ErrNotFound)

	// Entity-specific "duplicate" errors

	// ErrRecordExists indicates that the source row has already been promoted.
	ErrRecordExists = fmt.Errorf("%w: stage record", ErrDuplicate)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError checks if the error is any kind of "duplicate" error.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// StoreError is a custom error type for store-specific errors with additional context.
type StoreError struct {
	Entity    string // The entity type (e.g., "candidate", "review entry")
	Operation string // The operation that failed (e.g., "insert", "resolve")
	Message   string // Error message
	Err       error  // Original error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf(
			"%s operation on %s failed: %s: %v",
			e.Operation,
			e.Entity,
			e.Message,
			e.Err,
		)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError with the given entity, operation, message, and wrapped error.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
