package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-curator/internal/domain"
	"github.com/phrazzld/scry-curator/internal/events"
	"github.com/phrazzld/scry-curator/internal/platform/logger"
	"github.com/phrazzld/scry-curator/internal/store"
)

// ImmutabilityGuard is the only entry point for mutations of approved
// content. Every attempt is recorded as a violation and refused.
type ImmutabilityGuard interface {
	// AttemptUpdate records a blocked update of an approved record and
	// returns an *ImmutabilityViolationError.
	AttemptUpdate(
		ctx context.Context,
		kind domain.ContentKind,
		approvedID uuid.UUID,
		actor string,
		changes json.RawMessage,
	) error

	// AttemptDelete records a blocked delete of an approved record and
	// returns an *ImmutabilityViolationError.
	AttemptDelete(ctx context.Context, kind domain.ContentKind, approvedID uuid.UUID, actor string) error

	// ListViolations returns recorded violations, newest first.
	ListViolations(ctx context.Context, limit, offset int) ([]*domain.ImmutabilityViolation, error)
}

// ViolationPayload is the payload of a content.violation event.
type ViolationPayload struct {
	ViolationID uuid.UUID                `json:"violation_id"`
	Kind        domain.ContentKind       `json:"kind"`
	Operation   domain.MutationOperation `json:"operation"`
	ActingUser  string                   `json:"acting_user"`
}

// immutabilityGuardImpl implements the ImmutabilityGuard interface
type immutabilityGuardImpl struct {
	db             *sql.DB
	stageStore     store.StageStore
	violationStore store.ViolationStore
	eventEmitter   events.EventEmitter
	logger         *slog.Logger
}

// NewImmutabilityGuard creates a new ImmutabilityGuard.
// It returns an error if any of the required dependencies are nil.
func NewImmutabilityGuard(
	db *sql.DB,
	stageStore store.StageStore,
	violationStore store.ViolationStore,
	eventEmitter events.EventEmitter,
	logger *slog.Logger,
) (ImmutabilityGuard, error) {
	if err := requireDeps(
		dependency{"db", db == nil},
		dependency{"stageStore", stageStore == nil},
		dependency{"violationStore", violationStore == nil},
		dependency{"eventEmitter", eventEmitter == nil},
	); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &immutabilityGuardImpl{
		db:             db,
		stageStore:     stageStore,
		violationStore: violationStore,
		eventEmitter:   eventEmitter,
		logger:         logger.With(slog.String("component", "immutability_guard")),
	}, nil
}

// AttemptUpdate implements ImmutabilityGuard.AttemptUpdate
func (g *immutabilityGuardImpl) AttemptUpdate(
	ctx context.Context,
	kind domain.ContentKind,
	approvedID uuid.UUID,
	actor string,
	changes json.RawMessage,
) error {
	return g.block(ctx, kind, approvedID, domain.MutationUpdate, actor, changes)
}

// AttemptDelete implements ImmutabilityGuard.AttemptDelete
func (g *immutabilityGuardImpl) AttemptDelete(
	ctx context.Context,
	kind domain.ContentKind,
	approvedID uuid.UUID,
	actor string,
) error {
	return g.block(ctx, kind, approvedID, domain.MutationDelete, actor, nil)
}

// block commits the violation record and then refuses the mutation. The
// record survives because it is written in its own transaction.
func (g *immutabilityGuardImpl) block(
	ctx context.Context,
	kind domain.ContentKind,
	approvedID uuid.UUID,
	op domain.MutationOperation,
	actor string,
	details json.RawMessage,
) error {
	if len(details) > 0 && !json.Valid(details) {
		details = nil
	}
	violation := domain.NewImmutabilityViolation(approvedID, kind, op, actor, details)

	err := store.RunInTransaction(ctx, g.db, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := g.stageStore.WithTx(tx).GetRecord(ctx, domain.StageApproved, kind, approvedID); err != nil {
			return err
		}
		return g.violationStore.WithTx(tx).CreateViolation(ctx, violation)
	})
	if err != nil {
		return NewCurationError("guard_mutation", "failed to record immutability violation", err)
	}

	log := logger.FromContextOrDefault(ctx, g.logger)
	log.Warn("blocked mutation of approved content",
		slog.String("item_id", approvedID.String()),
		slog.String("kind", string(kind)),
		slog.String("operation", string(op)),
		slog.String("acting_user", violation.ActingUser))

	publish(ctx, g.eventEmitter, log, events.TypeContentViolation, approvedID, ViolationPayload{
		ViolationID: violation.ID,
		Kind:        kind,
		Operation:   op,
		ActingUser:  violation.ActingUser,
	})

	return &ImmutabilityViolationError{Violation: violation}
}

// ListViolations implements ImmutabilityGuard.ListViolations
func (g *immutabilityGuardImpl) ListViolations(
	ctx context.Context,
	limit, offset int,
) ([]*domain.ImmutabilityViolation, error) {
	violations, err := g.violationStore.ListViolations(ctx, limit, offset)
	if err != nil {
		return nil, NewCurationError("list_violations", "failed to list violations", err)
	}
	return violations, nil
}
