package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-curator/internal/domain"
	"github.com/phrazzld/scry-curator/internal/events"
	"github.com/phrazzld/scry-curator/internal/platform/logger"
	"github.com/phrazzld/scry-curator/internal/store"
)

// TransitionRequest asks for one forward step of an item's lineage.
type TransitionRequest struct {
	// ItemID identifies the row at From.
	ItemID uuid.UUID
	Kind   domain.ContentKind
	From   domain.Stage
	To     domain.Stage
	// Metadata is copied onto the state transition event.
	Metadata map[string]string
	// Approval describes the approval for a VALIDATED -> APPROVED step.
	// A nil Approval on that step records an automatic approval.
	Approval *ApprovalRequest
}

// ApprovalRequest carries who approved an item and how.
type ApprovalRequest struct {
	Type       domain.ApprovalType
	OperatorID *uuid.UUID
	Notes      string
}

// TransitionResult is the outcome of a committed transition.
type TransitionResult struct {
	// Record is the row written at the destination stage.
	Record *domain.StageRecord
	// Approval is set when the destination is APPROVED.
	Approval *domain.ApprovalEvent
	// TasksMoved counts the item pipeline tasks repointed at Record.
	TasksMoved int64
}

// TransitionService moves items through DRAFT -> CANDIDATE -> VALIDATED -> APPROVED.
type TransitionService interface {
	// CreateDraft records new content at the start of the lineage.
	CreateDraft(
		ctx context.Context,
		kind domain.ContentKind,
		payload json.RawMessage,
		source string,
	) (*domain.StageRecord, error)

	// Transition promotes an item by exactly one stage inside one transaction.
	Transition(ctx context.Context, req TransitionRequest) (*TransitionResult, error)

	// GetRecord returns the row with id at stage.
	GetRecord(ctx context.Context, stage domain.Stage, kind domain.ContentKind, id uuid.UUID) (*domain.StageRecord, error)

	// GetLineage returns the chain from the item's draft to the row with id.
	GetLineage(ctx context.Context, stage domain.Stage, kind domain.ContentKind, id uuid.UUID) (domain.Lineage, error)

	// CurrentStage reports the stage that holds the row with id.
	CurrentStage(ctx context.Context, id uuid.UUID) (domain.Stage, domain.ContentKind, error)

	// ListTransitions returns the audit trail touching the row with id.
	ListTransitions(ctx context.Context, id uuid.UUID) ([]*domain.StateTransitionEvent, error)
}

// promoter performs a transition inside a caller-owned transaction. It is
// shared by every service that ends in a promotion.
type promoter struct {
	stageStore    store.StageStore
	approvalStore store.ApprovalStore
	pipelineStore store.PipelineStore
	logger        *slog.Logger
}

// promote writes the destination row, the approval ledger entry when the
// destination is APPROVED, repoints item tasks and records the transition
// event. The event is written in a savepoint and a failure there is logged
// without failing the promotion.
func (p *promoter) promote(ctx context.Context, tx *sql.Tx, req TransitionRequest) (*TransitionResult, error) {
	if err := domain.CheckTransition(req.From, req.To); err != nil {
		return nil, err
	}
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidKind, req.Kind)
	}
	if req.Approval != nil && req.To != domain.StageApproved {
		return nil, fmt.Errorf("%w: approval given for transition to %s", domain.ErrInvalidApproval, req.To)
	}

	log := logger.FromContextOrDefault(ctx, p.logger)
	stages := p.stageStore.WithTx(tx)

	source, err := stages.GetRecord(ctx, req.From, req.Kind, req.ItemID)
	if err != nil {
		return nil, NewCurationError("transition", "failed to load source record", err)
	}

	payload := source.Payload
	if req.From == domain.StageDraft {
		payload, err = domain.NormalizePayload(req.Kind, source.Payload)
		if err != nil {
			return nil, err
		}
	}

	var approval *domain.ApprovalEvent
	if req.To == domain.StageApproved {
		a := ApprovalRequest{Type: domain.ApprovalAutomatic}
		if req.Approval != nil {
			a = *req.Approval
		}
		approval, err = domain.NewApprovalEvent(source.ID, req.Kind, a.Type, a.OperatorID, a.Notes)
		if err != nil {
			return nil, err
		}
	}

	dest, err := source.Promote(payload)
	if err != nil {
		return nil, err
	}
	if err := stages.Insert(ctx, dest); err != nil {
		return nil, NewCurationError("transition", "failed to write destination record", err)
	}

	if approval != nil {
		approval.ApprovedID = &dest.ID
		if err := p.approvalStore.WithTx(tx).CreateApproval(ctx, approval); err != nil {
			return nil, NewCurationError("transition", "failed to record approval", err)
		}
	}

	moved, err := p.pipelineStore.WithTx(tx).MoveItemTasks(ctx, source.ID, dest.ID, dest.Stage)
	if err != nil {
		return nil, NewCurationError("transition", "failed to move item tasks", err)
	}

	event := &domain.StateTransitionEvent{
		ID:        uuid.New(),
		ItemID:    dest.ID,
		SourceID:  source.ID,
		Kind:      req.Kind,
		FromStage: req.From,
		ToStage:   req.To,
		Metadata:  transitionMetadata(req.Metadata, approval),
		CreatedAt: dest.CreatedAt,
	}
	err = store.RunInSavepoint(ctx, tx, "transition_event", func(ctx context.Context, tx *sql.Tx) error {
		return stages.RecordTransition(ctx, event)
	})
	if err != nil {
		log.Warn("failed to record state transition event",
			slog.String("error", err.Error()),
			slog.String("source_id", source.ID.String()),
			slog.String("to_stage", string(req.To)))
	}

	log.Info("item transitioned",
		slog.String("source_id", source.ID.String()),
		slog.String("record_id", dest.ID.String()),
		slog.String("kind", string(req.Kind)),
		slog.String("from_stage", string(req.From)),
		slog.String("to_stage", string(req.To)),
		slog.Int64("tasks_moved", moved))

	return &TransitionResult{Record: dest, Approval: approval, TasksMoved: moved}, nil
}

func transitionMetadata(in map[string]string, approval *domain.ApprovalEvent) map[string]string {
	if approval == nil {
		return in
	}
	out := make(map[string]string, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	out["approval_type"] = string(approval.ApprovalType)
	return out
}

// ApprovedPayload is the payload of an item.approved event.
type ApprovedPayload struct {
	ValidatedID  uuid.UUID           `json:"validated_id"`
	ApprovedID   uuid.UUID           `json:"approved_id"`
	Kind         domain.ContentKind  `json:"kind"`
	ApprovalType domain.ApprovalType `json:"approval_type"`
}

// publish emits a curation event after commit. A failure is logged; the
// committed state is authoritative.
func publish(
	ctx context.Context,
	emitter events.EventEmitter,
	log *slog.Logger,
	eventType string,
	itemID uuid.UUID,
	payload interface{},
) {
	event, err := events.NewCurationEvent(eventType, itemID, payload)
	if err == nil {
		err = emitter.EmitEvent(ctx, event)
	}
	if err != nil {
		log.Error("failed to emit curation event",
			slog.String("error", err.Error()),
			slog.String("event_type", eventType),
			slog.String("item_id", itemID.String()))
	}
}

func publishApproved(
	ctx context.Context,
	emitter events.EventEmitter,
	log *slog.Logger,
	result *TransitionResult,
) {
	if result.Approval == nil {
		return
	}
	publish(ctx, emitter, log, events.TypeItemApproved, result.Record.ID, ApprovedPayload{
		ValidatedID:  result.Record.ParentID,
		ApprovedID:   result.Record.ID,
		Kind:         result.Record.Kind,
		ApprovalType: result.Approval.ApprovalType,
	})
}

// transitionServiceImpl implements the TransitionService interface
type transitionServiceImpl struct {
	db           *sql.DB
	promoter     *promoter
	stageStore   store.StageStore
	eventEmitter events.EventEmitter
	logger       *slog.Logger
}

// NewTransitionService creates a new TransitionService.
// It returns an error if any of the required dependencies are nil.
func NewTransitionService(
	db *sql.DB,
	stageStore store.StageStore,
	approvalStore store.ApprovalStore,
	pipelineStore store.PipelineStore,
	eventEmitter events.EventEmitter,
	logger *slog.Logger,
) (TransitionService, error) {
	if err := requireDeps(
		dependency{"db", db == nil},
		dependency{"stageStore", stageStore == nil},
		dependency{"approvalStore", approvalStore == nil},
		dependency{"pipelineStore", pipelineStore == nil},
		dependency{"eventEmitter", eventEmitter == nil},
	); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With(slog.String("component", "transition_service"))

	return &transitionServiceImpl{
		db: db,
		promoter: &promoter{
			stageStore:    stageStore,
			approvalStore: approvalStore,
			pipelineStore: pipelineStore,
			logger:        log,
		},
		stageStore:   stageStore,
		eventEmitter: eventEmitter,
		logger:       log,
	}, nil
}

// CreateDraft implements TransitionService.CreateDraft
func (s *transitionServiceImpl) CreateDraft(
	ctx context.Context,
	kind domain.ContentKind,
	payload json.RawMessage,
	source string,
) (*domain.StageRecord, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidKind, kind)
	}
	record, err := domain.NewDraft(kind, payload, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if err := s.stageStore.CreateDraft(ctx, record); err != nil {
		return nil, NewCurationError("create_draft", "failed to save draft", err)
	}
	return record, nil
}

// Transition implements TransitionService.Transition
func (s *transitionServiceImpl) Transition(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var result *TransitionResult
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		result, err = s.promoter.promote(ctx, tx, req)
		return err
	})
	if err != nil {
		log.Debug("transition failed",
			slog.String("error", err.Error()),
			slog.String("item_id", req.ItemID.String()),
			slog.String("from_stage", string(req.From)),
			slog.String("to_stage", string(req.To)))
		return nil, NewCurationError("transition", "failed to transition item", err)
	}

	publishApproved(ctx, s.eventEmitter, log, result)
	return result, nil
}

// GetRecord implements TransitionService.GetRecord
func (s *transitionServiceImpl) GetRecord(
	ctx context.Context,
	stage domain.Stage,
	kind domain.ContentKind,
	id uuid.UUID,
) (*domain.StageRecord, error) {
	record, err := s.stageStore.GetRecord(ctx, stage, kind, id)
	if err != nil {
		return nil, NewCurationError("get_record", "failed to load record", err)
	}
	return record, nil
}

// GetLineage implements TransitionService.GetLineage
func (s *transitionServiceImpl) GetLineage(
	ctx context.Context,
	stage domain.Stage,
	kind domain.ContentKind,
	id uuid.UUID,
) (domain.Lineage, error) {
	lineage, err := s.stageStore.GetLineage(ctx, stage, kind, id)
	if err != nil {
		return nil, NewCurationError("get_lineage", "failed to load lineage", err)
	}
	return lineage, nil
}

// CurrentStage implements TransitionService.CurrentStage
func (s *transitionServiceImpl) CurrentStage(ctx context.Context, id uuid.UUID) (domain.Stage, domain.ContentKind, error) {
	stage, kind, err := s.stageStore.CurrentStage(ctx, id)
	if err != nil {
		return "", "", NewCurationError("current_stage", "failed to locate record", err)
	}
	return stage, kind, nil
}

// ListTransitions implements TransitionService.ListTransitions
func (s *transitionServiceImpl) ListTransitions(ctx context.Context, id uuid.UUID) ([]*domain.StateTransitionEvent, error) {
	transitions, err := s.stageStore.ListTransitions(ctx, id)
	if err != nil {
		return nil, NewCurationError("list_transitions", "failed to load transitions", err)
	}
	return transitions, nil
}
