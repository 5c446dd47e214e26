package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/scry-curator/internal/domain"
	"github.com/phrazzld/scry-curator/internal/store"
)

// Error handling principles:
//  1. Service methods return the domain error taxonomy for expected conditions
//  2. Store errors are translated into that taxonomy before leaving the package
//  3. Unexpected errors are wrapped in CurationError with the failed operation
//  4. Callers use errors.Is/errors.As to check for specific conditions

// taxonomy lists the domain sentinels that pass through NewCurationError unchanged.
var taxonomy = []error{
	domain.ErrNotFound,
	domain.ErrConflict,
	domain.ErrValidationFailed,
	domain.ErrReviewRequired,
	domain.ErrAlreadyResolved,
	domain.ErrImmutableContent,
	domain.ErrInvalidApproval,
	domain.ErrInvalidTransition,
	domain.ErrInvalidTaskTransition,
	domain.ErrDependencyNotMet,
	domain.ErrInvalidPayload,
	domain.ErrInvalidKind,
	domain.ErrInvalidStage,
	domain.ErrInvalidDecision,
	domain.ErrInvalidDeprecation,
}

// CurationError wraps unexpected errors from the curation services with context.
type CurationError struct {
	// Operation is the operation that failed (e.g., "transition", "record_failure")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for CurationError.
func (e *CurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("curation %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("curation %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *CurationError) Unwrap() error {
	return e.Err
}

// NewCurationError translates err into the domain taxonomy. Errors that
// already carry a domain sentinel are returned as is; store sentinels are
// mapped onto their domain counterparts; anything else is wrapped.
func NewCurationError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	for _, sentinel := range taxonomy {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	switch {
	case store.IsNotFoundError(err):
		return fmt.Errorf("%w: %s: %v", domain.ErrNotFound, message, err)
	case store.IsDuplicateError(err):
		return fmt.Errorf("%w: %s: %v", domain.ErrConflict, message, err)
	case errors.Is(err, store.ErrImmutable):
		return fmt.Errorf("%w: %s: %v", domain.ErrImmutableContent, message, err)
	}

	return &CurationError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// ImmutabilityViolationError is returned when a mutation of approved content
// was blocked. The violation has already been committed to the audit log.
type ImmutabilityViolationError struct {
	Violation *domain.ImmutabilityViolation
}

// Error implements the error interface.
func (e *ImmutabilityViolationError) Error() string {
	return fmt.Sprintf("%v: %s of approved %s %s by %s",
		domain.ErrImmutableContent,
		e.Violation.AttemptedOperation,
		e.Violation.ItemType,
		e.Violation.ItemID,
		e.Violation.ActingUser)
}

// Unwrap makes errors.Is(err, domain.ErrImmutableContent) hold.
func (e *ImmutabilityViolationError) Unwrap() error {
	return domain.ErrImmutableContent
}

// dependency names a constructor argument and whether it is nil.
type dependency struct {
	name    string
	missing bool
}

// requireDeps reports the first missing dependency as a create_service error.
func requireDeps(deps ...dependency) error {
	for _, d := range deps {
		if d.missing {
			return &CurationError{
				Operation: "create_service",
				Message:   d.name + " cannot be nil",
			}
		}
	}
	return nil
}
