package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-curator/internal/domain"
	"github.com/phrazzld/scry-curator/internal/events"
	"github.com/phrazzld/scry-curator/internal/store"
	"github.com/stretchr/testify/mock"
)

// MockStageStore mocks the store.StageStore interface
type MockStageStore struct {
	mock.Mock
}

func (m *MockStageStore) CreateDraft(ctx context.Context, record *domain.StageRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockStageStore) GetRecord(
	ctx context.Context,
	stage domain.Stage,
	kind domain.ContentKind,
	id uuid.UUID,
) (*domain.StageRecord, error) {
	args := m.Called(ctx, stage, kind, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StageRecord), args.Error(1)
}

func (m *MockStageStore) Insert(ctx context.Context, record *domain.StageRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockStageStore) GetLineage(
	ctx context.Context,
	stage domain.Stage,
	kind domain.ContentKind,
	id uuid.UUID,
) (domain.Lineage, error) {
	args := m.Called(ctx, stage, kind, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.Lineage), args.Error(1)
}

func (m *MockStageStore) CurrentStage(ctx context.Context, id uuid.UUID) (domain.Stage, domain.ContentKind, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Stage), args.Get(1).(domain.ContentKind), args.Error(2)
}

func (m *MockStageStore) RecordTransition(ctx context.Context, event *domain.StateTransitionEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockStageStore) ListTransitions(ctx context.Context, id uuid.UUID) ([]*domain.StateTransitionEvent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.StateTransitionEvent), args.Error(1)
}

func (m *MockStageStore) WithTx(tx *sql.Tx) store.StageStore {
	return m
}

// MockFailureStore mocks the store.ValidationFailureStore interface
type MockFailureStore struct {
	mock.Mock
}

func (m *MockFailureStore) LockCandidate(ctx context.Context, candidateID uuid.UUID) (domain.ContentKind, error) {
	args := m.Called(ctx, candidateID)
	return args.Get(0).(domain.ContentKind), args.Error(1)
}

func (m *MockFailureStore) LatestRetryCount(ctx context.Context, candidateID uuid.UUID) (int, error) {
	args := m.Called(ctx, candidateID)
	return args.Int(0), args.Error(1)
}

func (m *MockFailureStore) CreateFailure(ctx context.Context, failure *domain.ValidationFailure) error {
	args := m.Called(ctx, failure)
	return args.Error(0)
}

func (m *MockFailureStore) ListFailures(ctx context.Context, candidateID uuid.UUID) ([]*domain.ValidationFailure, error) {
	args := m.Called(ctx, candidateID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ValidationFailure), args.Error(1)
}

func (m *MockFailureStore) WithTx(tx *sql.Tx) store.ValidationFailureStore {
	return m
}

// MockReviewStore mocks the store.ReviewQueueStore interface
type MockReviewStore struct {
	mock.Mock
}

func (m *MockReviewStore) Enqueue(ctx context.Context, entry *domain.ReviewEntry) (*domain.ReviewEntry, bool, error) {
	args := m.Called(ctx, entry)
	if fn, ok := args.Get(0).(func(context.Context, *domain.ReviewEntry) *domain.ReviewEntry); ok {
		return fn(ctx, entry), args.Bool(1), args.Error(2)
	}
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.ReviewEntry), args.Bool(1), args.Error(2)
}

func (m *MockReviewStore) GetActive(ctx context.Context, itemID uuid.UUID) (*domain.ReviewEntry, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReviewEntry), args.Error(1)
}

func (m *MockReviewStore) Assign(
	ctx context.Context,
	itemID, operatorID uuid.UUID,
	at time.Time,
) (*domain.ReviewEntry, error) {
	args := m.Called(ctx, itemID, operatorID, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReviewEntry), args.Error(1)
}

func (m *MockReviewStore) Resolve(
	ctx context.Context,
	itemID uuid.UUID,
	decision domain.ReviewDecision,
	notes string,
	at time.Time,
) (*domain.ReviewEntry, error) {
	args := m.Called(ctx, itemID, decision, notes, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReviewEntry), args.Error(1)
}

func (m *MockReviewStore) HasResolved(ctx context.Context, itemID uuid.UUID) (bool, error) {
	args := m.Called(ctx, itemID)
	return args.Bool(0), args.Error(1)
}

func (m *MockReviewStore) ListPending(ctx context.Context, limit, offset int) ([]*domain.ReviewEntry, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ReviewEntry), args.Error(1)
}

func (m *MockReviewStore) WithTx(tx *sql.Tx) store.ReviewQueueStore {
	return m
}

// MockApprovalStore mocks the store.ApprovalStore interface
type MockApprovalStore struct {
	mock.Mock
}

func (m *MockApprovalStore) CreateApproval(ctx context.Context, event *domain.ApprovalEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockApprovalStore) GetByItem(ctx context.Context, itemID uuid.UUID) (*domain.ApprovalEvent, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ApprovalEvent), args.Error(1)
}

func (m *MockApprovalStore) ListByOperator(
	ctx context.Context,
	operatorID uuid.UUID,
	limit, offset int,
) ([]*domain.ApprovalEvent, error) {
	args := m.Called(ctx, operatorID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ApprovalEvent), args.Error(1)
}

func (m *MockApprovalStore) ListByType(
	ctx context.Context,
	approvalType domain.ApprovalType,
	limit, offset int,
) ([]*domain.ApprovalEvent, error) {
	args := m.Called(ctx, approvalType, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ApprovalEvent), args.Error(1)
}

func (m *MockApprovalStore) Stats(ctx context.Context) (*domain.ApprovalStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ApprovalStats), args.Error(1)
}

func (m *MockApprovalStore) CreateDeprecation(ctx context.Context, deprecation *domain.Deprecation) error {
	args := m.Called(ctx, deprecation)
	return args.Error(0)
}

func (m *MockApprovalStore) WithTx(tx *sql.Tx) store.ApprovalStore {
	return m
}

// MockViolationStore mocks the store.ViolationStore interface
type MockViolationStore struct {
	mock.Mock
}

func (m *MockViolationStore) CreateViolation(ctx context.Context, violation *domain.ImmutabilityViolation) error {
	args := m.Called(ctx, violation)
	return args.Error(0)
}

func (m *MockViolationStore) ListViolations(
	ctx context.Context,
	limit, offset int,
) ([]*domain.ImmutabilityViolation, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ImmutabilityViolation), args.Error(1)
}

func (m *MockViolationStore) WithTx(tx *sql.Tx) store.ViolationStore {
	return m
}

// MockPipelineStore mocks the store.PipelineStore interface
type MockPipelineStore struct {
	mock.Mock
}

func (m *MockPipelineStore) CreatePipeline(ctx context.Context, pipeline *domain.DocumentPipeline) error {
	args := m.Called(ctx, pipeline)
	return args.Error(0)
}

func (m *MockPipelineStore) GetPipeline(ctx context.Context, id uuid.UUID) (*domain.DocumentPipeline, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DocumentPipeline), args.Error(1)
}

func (m *MockPipelineStore) LockPipeline(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockPipelineStore) TaskStatuses(ctx context.Context, pipelineID uuid.UUID) ([]domain.TaskStatus, error) {
	args := m.Called(ctx, pipelineID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.TaskStatus), args.Error(1)
}

func (m *MockPipelineStore) UpdateAggregate(
	ctx context.Context,
	id uuid.UUID,
	agg domain.PipelineAggregate,
	at time.Time,
) error {
	args := m.Called(ctx, id, agg, at)
	return args.Error(0)
}

func (m *MockPipelineStore) CreateTask(ctx context.Context, task *domain.PipelineTask) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockPipelineStore) GetTask(ctx context.Context, id uuid.UUID) (*domain.PipelineTask, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PipelineTask), args.Error(1)
}

func (m *MockPipelineStore) GetTaskForUpdate(ctx context.Context, id uuid.UUID) (*domain.PipelineTask, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PipelineTask), args.Error(1)
}

func (m *MockPipelineStore) UpdateTaskState(ctx context.Context, task *domain.PipelineTask) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockPipelineStore) ListTasks(ctx context.Context, pipelineID uuid.UUID) ([]*domain.PipelineTask, error) {
	args := m.Called(ctx, pipelineID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.PipelineTask), args.Error(1)
}

func (m *MockPipelineStore) ListItemTasks(
	ctx context.Context,
	stage domain.Stage,
	status domain.TaskStatus,
	limit, offset int,
) ([]*domain.PipelineTask, error) {
	args := m.Called(ctx, stage, status, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.PipelineTask), args.Error(1)
}

func (m *MockPipelineStore) ListStaleTaskIDs(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockPipelineStore) MoveItemTasks(
	ctx context.Context,
	fromItemID, toItemID uuid.UUID,
	stage domain.Stage,
) (int64, error) {
	args := m.Called(ctx, fromItemID, toItemID, stage)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPipelineStore) WithTx(tx *sql.Tx) store.PipelineStore {
	return m
}

// MockPipelineEventStore mocks the store.PipelineEventStore interface
type MockPipelineEventStore struct {
	mock.Mock
}

func (m *MockPipelineEventStore) RecordEvent(ctx context.Context, event *domain.PipelineEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPipelineEventStore) ListEvents(ctx context.Context, taskID uuid.UUID) ([]*domain.PipelineEvent, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.PipelineEvent), args.Error(1)
}

func (m *MockPipelineEventStore) WithTx(tx *sql.Tx) store.PipelineEventStore {
	return m
}

// MockEventEmitter implements the events.EventEmitter interface for testing
type MockEventEmitter struct {
	mock.Mock
}

func (m *MockEventEmitter) EmitEvent(ctx context.Context, event *events.CurationEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// eventOfType matches a curation event by type.
func eventOfType(eventType string) interface{} {
	return mock.MatchedBy(func(e *events.CurationEvent) bool {
		return e.Type == eventType
	})
}
