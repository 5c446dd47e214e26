package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-curator/internal/domain"
	"github.com/phrazzld/scry-curator/internal/events"
	"github.com/phrazzld/scry-curator/internal/platform/logger"
	"github.com/phrazzld/scry-curator/internal/store"
)

// Gate is one automated check a candidate must pass before promotion.
type Gate interface {
	// Name identifies the gate in failure records.
	Name() string

	// Check evaluates the candidate payload. An error means the gate could
	// not run; a rejection is reported through the result.
	Check(ctx context.Context, kind domain.ContentKind, payload json.RawMessage) (domain.GateResult, error)
}

// GateFunc adapts a function to the Gate interface.
type GateFunc struct {
	GateName string
	Fn       func(ctx context.Context, kind domain.ContentKind, payload json.RawMessage) (domain.GateResult, error)
}

// Name implements Gate.
func (g GateFunc) Name() string { return g.GateName }

// Check implements Gate.
func (g GateFunc) Check(ctx context.Context, kind domain.ContentKind, payload json.RawMessage) (domain.GateResult, error) {
	return g.Fn(ctx, kind, payload)
}

// FailureOutcome is the result of recording a gate rejection.
type FailureOutcome struct {
	Failure *domain.ValidationFailure
	// Escalated is true when the retry ceiling was exceeded and the candidate
	// now waits in the review queue.
	Escalated bool
	// Review is the active review entry when Escalated.
	Review *domain.ReviewEntry
}

// ValidationOutcome is the result of running the gates over a candidate.
type ValidationOutcome struct {
	// Passed is true when every gate accepted and the candidate was promoted.
	Passed bool
	// Validated is the new VALIDATED record when Passed.
	Validated *TransitionResult
	// Failure is set when a gate rejected the candidate.
	Failure *FailureOutcome
}

// ReviewRequired reports whether the candidate was escalated to manual review.
func (o *ValidationOutcome) ReviewRequired() bool {
	return o.Failure != nil && o.Failure.Escalated
}

// EscalatedPayload is the payload of an item.escalated event.
type EscalatedPayload struct {
	CandidateID uuid.UUID          `json:"candidate_id"`
	Kind        domain.ContentKind `json:"kind"`
	RetryCount  int                `json:"retry_count"`
	Priority    int                `json:"priority"`
	Reason      string             `json:"reason"`
}

// ValidationService records gate rejections and escalates candidates that
// exceed the retry policy to the review queue.
type ValidationService interface {
	// RecordFailure appends a failure for candidateID with the next retry
	// count and escalates when the policy is exceeded.
	RecordFailure(
		ctx context.Context,
		candidateID uuid.UUID,
		result domain.GateResult,
		policy domain.RetryPolicy,
	) (*FailureOutcome, error)

	// ValidateCandidate runs gates in order. On the first rejection the
	// failure is recorded; when every gate passes the candidate is promoted
	// to VALIDATED. A non-escalated rejection returns ErrValidationFailed
	// alongside the outcome.
	ValidateCandidate(
		ctx context.Context,
		candidateID uuid.UUID,
		kind domain.ContentKind,
		gates []Gate,
		policy domain.RetryPolicy,
	) (*ValidationOutcome, error)

	// FailureHistory returns the candidate's failures in retry order.
	FailureHistory(ctx context.Context, candidateID uuid.UUID) ([]*domain.ValidationFailure, error)
}

// validationServiceImpl implements the ValidationService interface
type validationServiceImpl struct {
	db           *sql.DB
	promoter     *promoter
	failureStore store.ValidationFailureStore
	reviewStore  store.ReviewQueueStore
	stageStore   store.StageStore
	eventEmitter events.EventEmitter
	logger       *slog.Logger
}

// NewValidationService creates a new ValidationService.
// It returns an error if any of the required dependencies are nil.
func NewValidationService(
	db *sql.DB,
	stageStore store.StageStore,
	failureStore store.ValidationFailureStore,
	reviewStore store.ReviewQueueStore,
	approvalStore store.ApprovalStore,
	pipelineStore store.PipelineStore,
	eventEmitter events.EventEmitter,
	logger *slog.Logger,
) (ValidationService, error) {
	if err := requireDeps(
		dependency{"db", db == nil},
		dependency{"stageStore", stageStore == nil},
		dependency{"failureStore", failureStore == nil},
		dependency{"reviewStore", reviewStore == nil},
		dependency{"approvalStore", approvalStore == nil},
		dependency{"pipelineStore", pipelineStore == nil},
		dependency{"eventEmitter", eventEmitter == nil},
	); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With(slog.String("component", "validation_service"))

	return &validationServiceImpl{
		db: db,
		promoter: &promoter{
			stageStore:    stageStore,
			approvalStore: approvalStore,
			pipelineStore: pipelineStore,
			logger:        log,
		},
		failureStore: failureStore,
		reviewStore:  reviewStore,
		stageStore:   stageStore,
		eventEmitter: eventEmitter,
		logger:       log,
	}, nil
}

// RecordFailure implements ValidationService.RecordFailure
func (s *validationServiceImpl) RecordFailure(
	ctx context.Context,
	candidateID uuid.UUID,
	result domain.GateResult,
	policy domain.RetryPolicy,
) (*FailureOutcome, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var outcome *FailureOutcome
	var created bool
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		outcome, created, err = s.recordFailure(ctx, tx, candidateID, result, policy)
		return err
	})
	if err != nil {
		return nil, NewCurationError("record_failure", "failed to record validation failure", err)
	}

	log.Info("validation failure recorded",
		slog.String("candidate_id", candidateID.String()),
		slog.String("gate", result.GateName),
		slog.Int("retry_count", outcome.Failure.RetryCount),
		slog.Bool("escalated", outcome.Escalated))

	if created {
		publish(ctx, s.eventEmitter, log, events.TypeItemEscalated, candidateID, EscalatedPayload{
			CandidateID: candidateID,
			Kind:        outcome.Review.ItemType,
			RetryCount:  outcome.Failure.RetryCount,
			Priority:    outcome.Review.Priority,
			Reason:      outcome.Review.Reason,
		})
	}
	return outcome, nil
}

// recordFailure runs inside tx. The candidate row lock serializes concurrent
// failures so retry counts stay gap-free; the unique (candidate, retry)
// constraint backs that up.
func (s *validationServiceImpl) recordFailure(
	ctx context.Context,
	tx *sql.Tx,
	candidateID uuid.UUID,
	result domain.GateResult,
	policy domain.RetryPolicy,
) (*FailureOutcome, bool, error) {
	failures := s.failureStore.WithTx(tx)

	kind, err := failures.LockCandidate(ctx, candidateID)
	if err != nil {
		return nil, false, err
	}
	latest, err := failures.LatestRetryCount(ctx, candidateID)
	if err != nil {
		return nil, false, err
	}

	failure := &domain.ValidationFailure{
		ID:          uuid.New(),
		CandidateID: candidateID,
		GateName:    result.GateName,
		Reason:      result.Reason,
		Details:     result.Details,
		RetryCount:  latest + 1,
		CreatedAt:   time.Now().UTC(),
	}
	if err := failure.Validate(); err != nil {
		return nil, false, err
	}
	if err := failures.CreateFailure(ctx, failure); err != nil {
		return nil, false, err
	}

	outcome := &FailureOutcome{Failure: failure}
	if !policy.Exceeded(failure.RetryCount) {
		return outcome, false, nil
	}

	reason := fmt.Sprintf("validation failed %d times; last gate %s: %s",
		failure.RetryCount, failure.GateName, failure.Reason)
	entry, err := domain.NewReviewEntry(candidateID, kind, policy.Priority(), reason)
	if err != nil {
		return nil, false, err
	}
	active, created, err := s.reviewStore.WithTx(tx).Enqueue(ctx, entry)
	if err != nil {
		return nil, false, err
	}
	outcome.Escalated = true
	outcome.Review = active
	return outcome, created, nil
}

// ValidateCandidate implements ValidationService.ValidateCandidate
func (s *validationServiceImpl) ValidateCandidate(
	ctx context.Context,
	candidateID uuid.UUID,
	kind domain.ContentKind,
	gates []Gate,
	policy domain.RetryPolicy,
) (*ValidationOutcome, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := s.checkNotInReview(ctx, s.reviewStore, candidateID); err != nil {
		return nil, err
	}

	candidate, err := s.stageStore.GetRecord(ctx, domain.StageCandidate, kind, candidateID)
	if err != nil {
		return nil, NewCurationError("validate_candidate", "failed to load candidate", err)
	}

	for _, gate := range gates {
		result, err := gate.Check(ctx, kind, candidate.Payload)
		if err != nil {
			return nil, &CurationError{
				Operation: "validate_candidate",
				Message:   fmt.Sprintf("gate %s could not run", gate.Name()),
				Err:       err,
			}
		}
		if result.Passed {
			continue
		}
		if result.GateName == "" {
			result.GateName = gate.Name()
		}

		failure, err := s.RecordFailure(ctx, candidateID, result, policy)
		if err != nil {
			return nil, err
		}
		outcome := &ValidationOutcome{Failure: failure}
		if failure.Escalated {
			return outcome, nil
		}
		return outcome, fmt.Errorf("%w: gate %s: %s", domain.ErrValidationFailed, result.GateName, result.Reason)
	}

	var promoted *TransitionResult
	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.checkNotInReview(ctx, s.reviewStore.WithTx(tx), candidateID); err != nil {
			return err
		}
		var err error
		promoted, err = s.promoter.promote(ctx, tx, TransitionRequest{
			ItemID:   candidateID,
			Kind:     kind,
			From:     domain.StageCandidate,
			To:       domain.StageValidated,
			Metadata: map[string]string{"gates": fmt.Sprint(len(gates))},
		})
		return err
	})
	if err != nil {
		return nil, NewCurationError("validate_candidate", "failed to promote candidate", err)
	}

	log.Info("candidate validated",
		slog.String("candidate_id", candidateID.String()),
		slog.String("validated_id", promoted.Record.ID.String()))
	return &ValidationOutcome{Passed: true, Validated: promoted}, nil
}

// checkNotInReview returns ErrReviewRequired when the item has an active review entry.
func (s *validationServiceImpl) checkNotInReview(
	ctx context.Context,
	reviews store.ReviewQueueStore,
	itemID uuid.UUID,
) error {
	_, err := reviews.GetActive(ctx, itemID)
	switch {
	case err == nil:
		return fmt.Errorf("%w: item %s is awaiting manual review", domain.ErrReviewRequired, itemID)
	case errors.Is(err, store.ErrReviewEntryNotFound):
		return nil
	default:
		return NewCurationError("validate_candidate", "failed to check review queue", err)
	}
}

// FailureHistory implements ValidationService.FailureHistory
func (s *validationServiceImpl) FailureHistory(
	ctx context.Context,
	candidateID uuid.UUID,
) ([]*domain.ValidationFailure, error) {
	failures, err := s.failureStore.ListFailures(ctx, candidateID)
	if err != nil {
		return nil, NewCurationError("failure_history", "failed to load failures", err)
	}
	return failures, nil
}
