package service

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-curator/internal/domain"
	"github.com/phrazzld/scry-curator/internal/events"
	"github.com/phrazzld/scry-curator/internal/platform/logger"
	"github.com/phrazzld/scry-curator/internal/store"
)

// ApprovalService publishes validated items and keeps the approval ledger.
type ApprovalService interface {
	// Approve promotes a VALIDATED item to APPROVED and records the approval.
	Approve(
		ctx context.Context,
		validatedID uuid.UUID,
		kind domain.ContentKind,
		req ApprovalRequest,
	) (*TransitionResult, error)

	// RecordApproval appends a ledger entry for a validated item without
	// promoting it.
	RecordApproval(
		ctx context.Context,
		validatedID uuid.UUID,
		kind domain.ContentKind,
		req ApprovalRequest,
	) (*domain.ApprovalEvent, error)

	// GetApprovalEvent returns the latest approval of a validated or approved item.
	GetApprovalEvent(ctx context.Context, itemID uuid.UUID) (*domain.ApprovalEvent, error)

	// GetApprovalsByOperator lists an operator's manual approvals, newest first.
	GetApprovalsByOperator(ctx context.Context, operatorID uuid.UUID, limit, offset int) ([]*domain.ApprovalEvent, error)

	// GetApprovalsByType lists approvals of one type, newest first.
	GetApprovalsByType(
		ctx context.Context,
		approvalType domain.ApprovalType,
		limit, offset int,
	) ([]*domain.ApprovalEvent, error)

	// GetApprovalStats summarizes the ledger.
	GetApprovalStats(ctx context.Context) (*domain.ApprovalStats, error)

	// Deprecate marks an approved record as superseded, optionally by another
	// approved record of the same kind. The record itself is not modified.
	Deprecate(
		ctx context.Context,
		kind domain.ContentKind,
		approvedID uuid.UUID,
		replacedBy *uuid.UUID,
		reason string,
		operatorID uuid.UUID,
	) (*domain.Deprecation, error)
}

// approvalServiceImpl implements the ApprovalService interface
type approvalServiceImpl struct {
	db            *sql.DB
	promoter      *promoter
	stageStore    store.StageStore
	approvalStore store.ApprovalStore
	eventEmitter  events.EventEmitter
	logger        *slog.Logger
}

// NewApprovalService creates a new ApprovalService.
// It returns an error if any of the required dependencies are nil.
func NewApprovalService(
	db *sql.DB,
	stageStore store.StageStore,
	approvalStore store.ApprovalStore,
	pipelineStore store.PipelineStore,
	eventEmitter events.EventEmitter,
	logger *slog.Logger,
) (ApprovalService, error) {
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
	log := logger.With(slog.String("component", "approval_service"))

	return &approvalServiceImpl{
		db: db,
		promoter: &promoter{
			stageStore:    stageStore,
			approvalStore: approvalStore,
			pipelineStore: pipelineStore,
			logger:        log,
		},
		stageStore:    stageStore,
		approvalStore: approvalStore,
		eventEmitter:  eventEmitter,
		logger:        log,
	}, nil
}

// Approve implements ApprovalService.Approve
func (s *approvalServiceImpl) Approve(
	ctx context.Context,
	validatedID uuid.UUID,
	kind domain.ContentKind,
	req ApprovalRequest,
) (*TransitionResult, error) {
	var result *TransitionResult
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		result, err = s.promoter.promote(ctx, tx, TransitionRequest{
			ItemID:   validatedID,
			Kind:     kind,
			From:     domain.StageValidated,
			To:       domain.StageApproved,
			Approval: &req,
		})
		return err
	})
	if err != nil {
		return nil, NewCurationError("approve", "failed to approve item", err)
	}

	publishApproved(ctx, s.eventEmitter, logger.FromContextOrDefault(ctx, s.logger), result)
	return result, nil
}

// RecordApproval implements ApprovalService.RecordApproval
func (s *approvalServiceImpl) RecordApproval(
	ctx context.Context,
	validatedID uuid.UUID,
	kind domain.ContentKind,
	req ApprovalRequest,
) (*domain.ApprovalEvent, error) {
	event, err := domain.NewApprovalEvent(validatedID, kind, req.Type, req.OperatorID, req.Notes)
	if err != nil {
		return nil, err
	}
	if _, err := s.stageStore.GetRecord(ctx, domain.StageValidated, kind, validatedID); err != nil {
		return nil, NewCurationError("record_approval", "failed to load validated item", err)
	}
	if err := s.approvalStore.CreateApproval(ctx, event); err != nil {
		return nil, NewCurationError("record_approval", "failed to record approval", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("approval recorded",
		slog.String("item_id", validatedID.String()),
		slog.String("approval_type", string(event.ApprovalType)))
	return event, nil
}

// GetApprovalEvent implements ApprovalService.GetApprovalEvent
func (s *approvalServiceImpl) GetApprovalEvent(ctx context.Context, itemID uuid.UUID) (*domain.ApprovalEvent, error) {
	event, err := s.approvalStore.GetByItem(ctx, itemID)
	if err != nil {
		return nil, NewCurationError("get_approval", "failed to load approval", err)
	}
	return event, nil
}

// GetApprovalsByOperator implements ApprovalService.GetApprovalsByOperator
func (s *approvalServiceImpl) GetApprovalsByOperator(
	ctx context.Context,
	operatorID uuid.UUID,
	limit, offset int,
) ([]*domain.ApprovalEvent, error) {
	approvals, err := s.approvalStore.ListByOperator(ctx, operatorID, limit, offset)
	if err != nil {
		return nil, NewCurationError("list_approvals", "failed to list approvals by operator", err)
	}
	return approvals, nil
}

// GetApprovalsByType implements ApprovalService.GetApprovalsByType
func (s *approvalServiceImpl) GetApprovalsByType(
	ctx context.Context,
	approvalType domain.ApprovalType,
	limit, offset int,
) ([]*domain.ApprovalEvent, error) {
	if !approvalType.Valid() {
		return nil, domain.ErrInvalidApproval
	}
	approvals, err := s.approvalStore.ListByType(ctx, approvalType, limit, offset)
	if err != nil {
		return nil, NewCurationError("list_approvals", "failed to list approvals by type", err)
	}
	return approvals, nil
}

// GetApprovalStats implements ApprovalService.GetApprovalStats
func (s *approvalServiceImpl) GetApprovalStats(ctx context.Context) (*domain.ApprovalStats, error) {
	stats, err := s.approvalStore.Stats(ctx)
	if err != nil {
		return nil, NewCurationError("approval_stats", "failed to compute approval stats", err)
	}
	return stats, nil
}

// Deprecate implements ApprovalService.Deprecate
func (s *approvalServiceImpl) Deprecate(
	ctx context.Context,
	kind domain.ContentKind,
	approvedID uuid.UUID,
	replacedBy *uuid.UUID,
	reason string,
	operatorID uuid.UUID,
) (*domain.Deprecation, error) {
	deprecation, err := domain.NewDeprecation(kind, approvedID, replacedBy, reason, operatorID)
	if err != nil {
		return nil, err
	}

	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		stages := s.stageStore.WithTx(tx)
		if _, err := stages.GetRecord(ctx, domain.StageApproved, kind, approvedID); err != nil {
			return err
		}
		if replacedBy != nil {
			if _, err := stages.GetRecord(ctx, domain.StageApproved, kind, *replacedBy); err != nil {
				return err
			}
		}
		return s.approvalStore.WithTx(tx).CreateDeprecation(ctx, deprecation)
	})
	if err != nil {
		return nil, NewCurationError("deprecate", "failed to deprecate approved record", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("approved record deprecated",
		slog.String("approved_id", approvedID.String()),
		slog.String("kind", string(kind)))
	return deprecation, nil
}
