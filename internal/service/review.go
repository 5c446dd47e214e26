package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-curator/internal/domain"
	"github.com/phrazzld/scry-curator/internal/platform/logger"
	"github.com/phrazzld/scry-curator/internal/store"
)

// ReviewService manages the manual review queue.
type ReviewService interface {
	// Enqueue adds the item to the queue. If the item already has an
	// unresolved entry that entry is returned unchanged.
	Enqueue(
		ctx context.Context,
		itemID uuid.UUID,
		itemType domain.ContentKind,
		priority int,
		reason string,
	) (*domain.ReviewEntry, error)

	// Assign gives the item's unresolved entry to operatorID. Reassignment
	// overwrites the previous operator.
	Assign(ctx context.Context, itemID, operatorID uuid.UUID) (*domain.ReviewEntry, error)

	// Resolve records the decision on the item's unresolved entry. Resolving
	// twice returns ErrAlreadyResolved.
	Resolve(
		ctx context.Context,
		itemID uuid.UUID,
		decision domain.ReviewDecision,
		notes string,
	) (*domain.ReviewEntry, error)

	// GetActive returns the item's unresolved entry.
	GetActive(ctx context.Context, itemID uuid.UUID) (*domain.ReviewEntry, error)

	// ListPending returns unresolved entries, most urgent first.
	ListPending(ctx context.Context, limit, offset int) ([]*domain.ReviewEntry, error)
}

// reviewServiceImpl implements the ReviewService interface
type reviewServiceImpl struct {
	db          *sql.DB
	reviewStore store.ReviewQueueStore
	logger      *slog.Logger
}

// NewReviewService creates a new ReviewService.
// It returns an error if any of the required dependencies are nil.
func NewReviewService(
	db *sql.DB,
	reviewStore store.ReviewQueueStore,
	logger *slog.Logger,
) (ReviewService, error) {
	if err := requireDeps(
		dependency{"db", db == nil},
		dependency{"reviewStore", reviewStore == nil},
	); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &reviewServiceImpl{
		db:          db,
		reviewStore: reviewStore,
		logger:      logger.With(slog.String("component", "review_service")),
	}, nil
}

// Enqueue implements ReviewService.Enqueue
func (s *reviewServiceImpl) Enqueue(
	ctx context.Context,
	itemID uuid.UUID,
	itemType domain.ContentKind,
	priority int,
	reason string,
) (*domain.ReviewEntry, error) {
	entry, err := domain.NewReviewEntry(itemID, itemType, priority, reason)
	if err != nil {
		return nil, err
	}
	active, created, err := s.reviewStore.Enqueue(ctx, entry)
	if err != nil {
		return nil, NewCurationError("enqueue_review", "failed to enqueue item", err)
	}
	if created {
		logger.FromContextOrDefault(ctx, s.logger).Info("item queued for review",
			slog.String("item_id", itemID.String()),
			slog.Int("priority", active.Priority))
	}
	return active, nil
}

// Assign implements ReviewService.Assign
func (s *reviewServiceImpl) Assign(ctx context.Context, itemID, operatorID uuid.UUID) (*domain.ReviewEntry, error) {
	if operatorID == uuid.Nil {
		return nil, &CurationError{Operation: "assign_review", Message: "operator ID is required"}
	}
	entry, err := s.reviewStore.Assign(ctx, itemID, operatorID, time.Now().UTC())
	if err != nil {
		return nil, NewCurationError("assign_review", "failed to assign review", err)
	}
	return entry, nil
}

// Resolve implements ReviewService.Resolve
func (s *reviewServiceImpl) Resolve(
	ctx context.Context,
	itemID uuid.UUID,
	decision domain.ReviewDecision,
	notes string,
) (*domain.ReviewEntry, error) {
	if !decision.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidDecision, decision)
	}

	var entry *domain.ReviewEntry
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		reviews := s.reviewStore.WithTx(tx)
		var err error
		entry, err = reviews.Resolve(ctx, itemID, decision, notes, time.Now().UTC())
		if !errors.Is(err, store.ErrReviewEntryNotFound) {
			return err
		}
		resolved, hasErr := reviews.HasResolved(ctx, itemID)
		if hasErr != nil {
			return hasErr
		}
		if resolved {
			return fmt.Errorf("%w: item %s", domain.ErrAlreadyResolved, itemID)
		}
		return err
	})
	if err != nil {
		return nil, NewCurationError("resolve_review", "failed to resolve review", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("review resolved",
		slog.String("item_id", itemID.String()),
		slog.String("decision", string(decision)))
	return entry, nil
}

// GetActive implements ReviewService.GetActive
func (s *reviewServiceImpl) GetActive(ctx context.Context, itemID uuid.UUID) (*domain.ReviewEntry, error) {
	entry, err := s.reviewStore.GetActive(ctx, itemID)
	if err != nil {
		return nil, NewCurationError("get_review", "failed to load review entry", err)
	}
	return entry, nil
}

// ListPending implements ReviewService.ListPending
func (s *reviewServiceImpl) ListPending(ctx context.Context, limit, offset int) ([]*domain.ReviewEntry, error) {
	entries, err := s.reviewStore.ListPending(ctx, limit, offset)
	if err != nil {
		return nil, NewCurationError("list_reviews", "failed to list pending reviews", err)
	}
	return entries, nil
}
