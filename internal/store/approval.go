package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-curator/internal/domain"
)

// ApprovalStore persists the append-only approval ledger and deprecations.
type ApprovalStore interface {
	// CreateApproval appends a ledger entry.
	// Returns ErrInvalidEntity if the entry fails validation.
	CreateApproval(ctx context.Context, event *domain.ApprovalEvent) error

	// GetByItem returns the most recent approval whose validated item or
	// resulting approved record is itemID.
	// Returns ErrApprovalNotFound if there is none.
	GetByItem(ctx context.Context, itemID uuid.UUID) (*domain.ApprovalEvent, error)

	// ListByOperator returns manual approvals by operatorID, newest first.
	ListByOperator(ctx context.Context, operatorID uuid.UUID, limit, offset int) ([]*domain.ApprovalEvent, error)

	// ListByType returns approvals of the given type, newest first.
	ListByType(ctx context.Context, approvalType domain.ApprovalType, limit, offset int) ([]*domain.ApprovalEvent, error)

	// Stats summarizes the ledger.
	Stats(ctx context.Context) (*domain.ApprovalStats, error)

	// CreateDeprecation records that an approved record is superseded.
	CreateDeprecation(ctx context.Context, deprecation *domain.Deprecation) error

	// WithTx returns a new ApprovalStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) ApprovalStore
}

// ViolationStore persists blocked mutation attempts on approved content.
type ViolationStore interface {
	// CreateViolation appends a violation record.
	CreateViolation(ctx context.Context, violation *domain.ImmutabilityViolation) error

	// ListViolations returns violations newest first.
	ListViolations(ctx context.Context, limit, offset int) ([]*domain.ImmutabilityViolation, error)

	// WithTx returns a new ViolationStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) ViolationStore
}
