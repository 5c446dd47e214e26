package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-curator/internal/domain"
)

// StageStore persists the append-only item lineage and its transition log.
type StageStore interface {
	// CreateDraft inserts a new DRAFT record.
	// Returns ErrInvalidEntity if the record fails validation.
	CreateDraft(ctx context.Context, record *domain.StageRecord) error

	// GetRecord retrieves the row with id from the table of stage. For the
	// approved stage the kind selects the table; otherwise a row of another
	// kind is reported as not found.
	// Returns ErrRecordNotFound if no such row exists.
	GetRecord(ctx context.Context, stage domain.Stage, kind domain.ContentKind, id uuid.UUID) (*domain.StageRecord, error)

	// Insert writes record into the table of record.Stage, referencing
	// record.ParentID in the previous stage.
	// Returns ErrRecordExists if the parent has already been promoted.
	Insert(ctx context.Context, record *domain.StageRecord) error

	// GetLineage walks back from the row with id at stage to its draft and
	// returns the chain ordered DRAFT first.
	// Returns ErrRecordNotFound if the starting row does not exist.
	GetLineage(ctx context.Context, stage domain.Stage, kind domain.ContentKind, id uuid.UUID) (domain.Lineage, error)

	// CurrentStage reports which stage table holds the row with id.
	// Returns ErrRecordNotFound if no table does.
	CurrentStage(ctx context.Context, id uuid.UUID) (domain.Stage, domain.ContentKind, error)

	// RecordTransition appends a state transition event.
	RecordTransition(ctx context.Context, event *domain.StateTransitionEvent) error

	// ListTransitions returns the transition events where id is either the
	// source or the destination row, oldest first.
	ListTransitions(ctx context.Context, id uuid.UUID) ([]*domain.StateTransitionEvent, error)

	// WithTx returns a new StageStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) StageStore
}
