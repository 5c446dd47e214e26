package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-curator/internal/domain"
)

// ValidationFailureStore persists the per-candidate gate rejection history.
type ValidationFailureStore interface {
	// LockCandidate takes a row lock on the candidate for the rest of the
	// transaction, serializing concurrent failure recording, and returns its kind.
	// Returns ErrRecordNotFound if the candidate does not exist.
	LockCandidate(ctx context.Context, candidateID uuid.UUID) (domain.ContentKind, error)

	// LatestRetryCount returns the highest retry count recorded for the
	// candidate, or 0 when it has never failed.
	LatestRetryCount(ctx context.Context, candidateID uuid.UUID) (int, error)

	// CreateFailure appends a failure row.
	// Returns ErrDuplicate if the retry count is already taken.
	CreateFailure(ctx context.Context, failure *domain.ValidationFailure) error

	// ListFailures returns the candidate's failures in retry order.
	ListFailures(ctx context.Context, candidateID uuid.UUID) ([]*domain.ValidationFailure, error)

	// WithTx returns a new ValidationFailureStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) ValidationFailureStore
}

// ReviewQueueStore persists the manual review queue. At most one unresolved
// entry exists per item.
type ReviewQueueStore interface {
	// Enqueue inserts entry unless the item already has an unresolved entry.
	// It returns the active entry and whether it was created by this call.
	Enqueue(ctx context.Context, entry *domain.ReviewEntry) (*domain.ReviewEntry, bool, error)

	// GetActive returns the item's unresolved entry.
	// Returns ErrReviewEntryNotFound if there is none.
	GetActive(ctx context.Context, itemID uuid.UUID) (*domain.ReviewEntry, error)

	// Assign sets the operator on the item's unresolved entry, overwriting
	// any previous assignment.
	// Returns ErrReviewEntryNotFound if there is no unresolved entry.
	Assign(ctx context.Context, itemID, operatorID uuid.UUID, at time.Time) (*domain.ReviewEntry, error)

	// Resolve sets the decision on the item's unresolved entry.
	// Returns ErrReviewEntryNotFound if there is no unresolved entry.
	Resolve(
		ctx context.Context,
		itemID uuid.UUID,
		decision domain.ReviewDecision,
		notes string,
		at time.Time,
	) (*domain.ReviewEntry, error)

	// HasResolved reports whether the item has at least one resolved entry.
	HasResolved(ctx context.Context, itemID uuid.UUID) (bool, error)

	// ListPending returns unresolved entries ordered by priority then age.
	ListPending(ctx context.Context, limit, offset int) ([]*domain.ReviewEntry, error)

	// WithTx returns a new ReviewQueueStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) ReviewQueueStore
}
