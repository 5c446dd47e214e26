package domain

import "errors"

// Curation error taxonomy. Callers check these with errors.Is; store and
// service layers wrap them with additional context.
var (
	// ErrNotFound is returned when the source row of an operation does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a concurrent or duplicate write collided with
	// an existing row. Callers must re-read current state before retrying.
	ErrConflict = errors.New("conflict")

	// ErrValidationFailed is returned when a gate rejected a candidate. The
	// rejection has been recorded and may be retried up to the policy ceiling.
	ErrValidationFailed = errors.New("validation failed")

	// ErrReviewRequired is returned when an item is waiting in the review queue
	// and must not be processed automatically.
	ErrReviewRequired = errors.New("review required")

	// ErrAlreadyResolved is returned when resolving a review entry that already
	// carries a decision.
	ErrAlreadyResolved = errors.New("review already resolved")

	// ErrImmutableContent is returned for any attempted mutation of approved content.
	ErrImmutableContent = errors.New("immutable content violation")

	// ErrInvalidApproval is returned when an approval's type and operator disagree.
	ErrInvalidApproval = errors.New("invalid approval")

	// ErrInvalidTransition is returned for stage moves that are not a single forward step.
	ErrInvalidTransition = errors.New("invalid stage transition")

	// ErrInvalidTaskTransition is returned for illegal pipeline task status changes.
	ErrInvalidTaskTransition = errors.New("invalid task status transition")

	// ErrDependencyNotMet is returned when a task's predecessor has not completed.
	ErrDependencyNotMet = errors.New("task dependency not completed")

	// ErrInvalidPayload is returned when content payload does not match its kind.
	ErrInvalidPayload = errors.New("invalid content payload")

	// ErrInvalidKind is returned for unknown content kinds.
	ErrInvalidKind = errors.New("invalid content kind")

	// ErrInvalidStage is returned for unknown lineage stages.
	ErrInvalidStage = errors.New("invalid stage")
)
