package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/scry-curator/internal/domain"
	"github.com/phrazzld/scry-curator/internal/platform/logger"
	"github.com/phrazzld/scry-curator/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// curationFixture wires every service against mock stores and a sqlmock database.
type curationFixture struct {
	db         *sql.DB
	sql        sqlmock.Sqlmock
	stages     *MockStageStore
	failures   *MockFailureStore
	reviews    *MockReviewStore
	approvals  *MockApprovalStore
	violations *MockViolationStore
	pipelines  *MockPipelineStore
	taskEvents *MockPipelineEventStore
	emitter    *MockEventEmitter
}

func newCurationFixture(t *testing.T) *curationFixture {
	t.Helper()
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return &curationFixture{
		db:         db,
		sql:        sqlMock,
		stages:     &MockStageStore{},
		failures:   &MockFailureStore{},
		reviews:    &MockReviewStore{},
		approvals:  &MockApprovalStore{},
		violations: &MockViolationStore{},
		pipelines:  &MockPipelineStore{},
		taskEvents: &MockPipelineEventStore{},
		emitter:    &MockEventEmitter{},
	}
}

func (f *curationFixture) transitionService(t *testing.T) TransitionService {
	t.Helper()
	svc, err := NewTransitionService(f.db, f.stages, f.approvals, f.pipelines, f.emitter, nil)
	require.NoError(t, err)
	return svc
}

// expectPromotion sets up the transaction around a promotion whose
// transition event write succeeds.
func (f *curationFixture) expectPromotion() {
	f.sql.ExpectBegin()
	f.sql.ExpectExec("^SAVEPOINT transition_event").WillReturnResult(sqlmock.NewResult(0, 0))
	f.sql.ExpectExec("^RELEASE SAVEPOINT transition_event").WillReturnResult(sqlmock.NewResult(0, 0))
	f.sql.ExpectCommit()
}

func (f *curationFixture) assertExpectations(t *testing.T) {
	t.Helper()
	assert.NoError(t, f.sql.ExpectationsWereMet())
	f.stages.AssertExpectations(t)
	f.failures.AssertExpectations(t)
	f.reviews.AssertExpectations(t)
	f.approvals.AssertExpectations(t)
	f.violations.AssertExpectations(t)
	f.pipelines.AssertExpectations(t)
	f.taskEvents.AssertExpectations(t)
	f.emitter.AssertExpectations(t)
}

func draftRecord(kind domain.ContentKind, payload string) *domain.StageRecord {
	return &domain.StageRecord{
		ID:        uuid.New(),
		Stage:     domain.StageDraft,
		Kind:      kind,
		Payload:   json.RawMessage(payload),
		Source:    "ingest",
		CreatedAt: time.Now().UTC(),
	}
}

func recordAt(stage domain.Stage, kind domain.ContentKind, payload string) *domain.StageRecord {
	return &domain.StageRecord{
		ID:        uuid.New(),
		Stage:     stage,
		Kind:      kind,
		ParentID:  uuid.New(),
		Payload:   json.RawMessage(payload),
		CreatedAt: time.Now().UTC(),
	}
}

const meaningJSON = `{"lemma":"  caf` + "é" + `  ","definition":"a  small restaurant","language":"fr"}`

func TestTransitionDraftToCandidate(t *testing.T) {
	t.Parallel()
	f := newCurationFixture(t)
	svc := f.transitionService(t)
	ctx := context.Background()

	draft := draftRecord(domain.KindMeaning, meaningJSON)
	f.expectPromotion()
	f.stages.On("GetRecord", mock.Anything, domain.StageDraft, domain.KindMeaning, draft.ID).Return(draft, nil)
	f.stages.On("Insert", mock.Anything, mock.AnythingOfType("*domain.StageRecord")).Return(nil)
	f.pipelines.On("MoveItemTasks", mock.Anything, draft.ID, mock.Anything, domain.StageCandidate).
		Return(int64(1), nil)
	f.stages.On("RecordTransition", mock.Anything, mock.MatchedBy(func(e *domain.StateTransitionEvent) bool {
		return e.SourceID == draft.ID && e.FromStage == domain.StageDraft && e.ToStage == domain.StageCandidate
	})).Return(nil)

	result, err := svc.Transition(ctx, TransitionRequest{
		ItemID: draft.ID,
		Kind:   domain.KindMeaning,
		From:   domain.StageDraft,
		To:     domain.StageCandidate,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StageCandidate, result.Record.Stage)
	assert.Equal(t, draft.ID, result.Record.ParentID)
	assert.Nil(t, result.Approval)
	assert.Equal(t, int64(1), result.TasksMoved)

	var payload domain.MeaningPayload
	require.NoError(t, json.Unmarshal(result.Record.Payload, &payload))
	assert.Equal(t, "café", payload.Lemma)
	assert.Equal(t, "a small restaurant", payload.Definition)

	f.assertExpectations(t)
}

func TestTransitionRejectsSkippedStage(t *testing.T) {
	t.Parallel()
	f := newCurationFixture(t)
	svc := f.transitionService(t)

	f.sql.ExpectBegin()
	f.sql.ExpectRollback()

	_, err := svc.Transition(context.Background(), TransitionRequest{
		ItemID: uuid.New(),
		Kind:   domain.KindRule,
		From:   domain.StageDraft,
		To:     domain.StageValidated,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	f.assertExpectations(t)
}

func TestTransitionRejectsBackwardMove(t *testing.T) {
	t.Parallel()
	f := newCurationFixture(t)
	svc := f.transitionService(t)

	f.sql.ExpectBegin()
	f.sql.ExpectRollback()

	_, err := svc.Transition(context.Background(), TransitionRequest{
		ItemID: uuid.New(),
		Kind:   domain.KindRule,
		From:   domain.StageApproved,
		To:     domain.StageValidated,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	f.assertExpectations(t)
}

func TestTransitionMissingSource(t *testing.T) {
	t.Parallel()
	f := newCurationFixture(t)
	svc := f.transitionService(t)
	id := uuid.New()

	f.sql.ExpectBegin()
	f.sql.ExpectRollback()
	f.stages.On("GetRecord", mock.Anything, domain.StageCandidate, domain.KindUtterance, id).
		Return(nil, store.ErrRecordNotFound)

	_, err := svc.Transition(context.Background(), TransitionRequest{
		ItemID: id,
		Kind:   domain.KindUtterance,
		From:   domain.StageCandidate,
		To:     domain.StageValidated,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	f.assertExpectations(t)
}

func TestTransitionConcurrentPromotionConflicts(t *testing.T) {
	t.Parallel()
	f := newCurationFixture(t)
	svc := f.transitionService(t)

	candidate := recordAt(domain.StageCandidate, domain.KindRule, `{"title":"t","explanation":"e","language":"es"}`)
	f.sql.ExpectBegin()
	f.sql.ExpectRollback()
	f.stages.On("GetRecord", mock.Anything, domain.StageCandidate, domain.KindRule, candidate.ID).Return(candidate, nil)
	f.stages.On("Insert", mock.Anything, mock.Anything).Return(store.ErrRecordExists)

	_, err := svc.Transition(context.Background(), TransitionRequest{
		ItemID: candidate.ID,
		Kind:   domain.KindRule,
		From:   domain.StageCandidate,
		To:     domain.StageValidated,
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
	f.assertExpectations(t)
}

func TestTransitionInvalidDraftPayload(t *testing.T) {
	t.Parallel()
	f := newCurationFixture(t)
	svc := f.transitionService(t)

	draft := draftRecord(domain.KindMeaning, `{"lemma":"x"}`)
	f.sql.ExpectBegin()
	f.sql.ExpectRollback()
	f.stages.On("GetRecord", mock.Anything, domain.StageDraft, domain.KindMeaning, draft.ID).Return(draft, nil)

	_, err := svc.Transition(context.Background(), TransitionRequest{
		ItemID: draft.ID,
		Kind:   domain.KindMeaning,
		From:   domain.StageDraft,
		To:     domain.StageCandidate,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
	f.assertExpectations(t)
}

func TestTransitionToApprovedRecordsApproval(t *testing.T) {
	t.Parallel()
	f := newCurationFixture(t)
	svc := f.transitionService(t)
	operator := uuid.New()

	validated := recordAt(domain.StageValidated, domain.KindExercise,
		`{"exercise_type":"cloze","prompt":"p","answer":"a","language":"de"}`)
	f.expectPromotion()
	f.stages.On("GetRecord", mock.Anything, domain.StageValidated, domain.KindExercise, validated.ID).
		Return(validated, nil)
	f.stages.On("Insert", mock.Anything, mock.Anything).Return(nil)
	f.approvals.On("CreateApproval", mock.Anything, mock.MatchedBy(func(e *domain.ApprovalEvent) bool {
		return e.ItemID == validated.ID && e.ApprovedID != nil &&
			e.ApprovalType == domain.ApprovalManual && *e.OperatorID == operator
	})).Return(nil)
	f.pipelines.On("MoveItemTasks", mock.Anything, validated.ID, mock.Anything, domain.StageApproved).
		Return(int64(0), nil)
	f.stages.On("RecordTransition", mock.Anything, mock.MatchedBy(func(e *domain.StateTransitionEvent) bool {
		return e.Metadata["approval_type"] == string(domain.ApprovalManual)
	})).Return(nil)
	f.emitter.On("EmitEvent", mock.Anything, eventOfType("item.approved")).Return(nil)

	result, err := svc.Transition(context.Background(), TransitionRequest{
		ItemID:   validated.ID,
		Kind:     domain.KindExercise,
		From:     domain.StageValidated,
		To:       domain.StageApproved,
		Approval: &ApprovalRequest{Type: domain.ApprovalManual, OperatorID: &operator},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Approval)
	assert.Equal(t, result.Record.ID, *result.Approval.ApprovedID)
	f.assertExpectations(t)
}

func TestTransitionToApprovedDefaultsToAutomatic(t *testing.T) {
	t.Parallel()
	f := newCurationFixture(t)
	svc := f.transitionService(t)

	validated := recordAt(domain.StageValidated, domain.KindRule, `{"title":"t","explanation":"e","language":"es"}`)
	f.expectPromotion()
	f.stages.On("GetRecord", mock.Anything, domain.StageValidated, domain.KindRule, validated.ID).Return(validated, nil)
	f.stages.On("Insert", mock.Anything, mock.Anything).Return(nil)
	f.approvals.On("CreateApproval", mock.Anything, mock.MatchedBy(func(e *domain.ApprovalEvent) bool {
		return e.ApprovalType == domain.ApprovalAutomatic && e.OperatorID == nil
	})).Return(nil)
	f.pipelines.On("MoveItemTasks", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(int64(0), nil)
	f.stages.On("RecordTransition", mock.Anything, mock.Anything).Return(nil)
	f.emitter.On("EmitEvent", mock.Anything, eventOfType("item.approved")).Return(nil)

	result, err := svc.Transition(context.Background(), TransitionRequest{
		ItemID: validated.ID,
		Kind:   domain.KindRule,
		From:   domain.StageValidated,
		To:     domain.StageApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalAutomatic, result.Approval.ApprovalType)
	f.assertExpectations(t)
}

func TestTransitionManualApprovalWithoutOperator(t *testing.T) {
	t.Parallel()
	f := newCurationFixture(t)
	svc := f.transitionService(t)

	validated := recordAt(domain.StageValidated, domain.KindRule, `{"title":"t","explanation":"e","language":"es"}`)
	f.sql.ExpectBegin()
	f.sql.ExpectRollback()
	f.stages.On("GetRecord", mock.Anything, domain.StageValidated, domain.KindRule, validated.ID).Return(validated, nil)

	_, err := svc.Transition(context.Background(), TransitionRequest{
		ItemID:   validated.ID,
		Kind:     domain.KindRule,
		From:     domain.StageValidated,
		To:       domain.StageApproved,
		Approval: &ApprovalRequest{Type: domain.ApprovalManual},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidApproval)
	f.stages.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestTransitionEventFailureDoesNotAbortPromotion(t *testing.T) {
	t.Parallel()
	f := newCurationFixture(t)
	svc := f.transitionService(t)

	candidate := recordAt(domain.StageCandidate, domain.KindRule, `{"title":"t","explanation":"e","language":"es"}`)
	f.sql.ExpectBegin()
	f.sql.ExpectExec("^SAVEPOINT transition_event").WillReturnResult(sqlmock.NewResult(0, 0))
	f.sql.ExpectExec("^ROLLBACK TO SAVEPOINT transition_event").WillReturnResult(sqlmock.NewResult(0, 0))
	f.sql.ExpectCommit()
	f.stages.On("GetRecord", mock.Anything, domain.StageCandidate, domain.KindRule, candidate.ID).Return(candidate, nil)
	f.stages.On("Insert", mock.Anything, mock.Anything).Return(nil)
	f.pipelines.On("MoveItemTasks", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(int64(0), nil)
	f.stages.On("RecordTransition", mock.Anything, mock.Anything).Return(errors.New("audit table unavailable"))

	ctx, logs := logger.NewTestContext(t)
	result, err := svc.Transition(ctx, TransitionRequest{
		ItemID: candidate.ID,
		Kind:   domain.KindRule,
		From:   domain.StageCandidate,
		To:     domain.StageValidated,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StageValidated, result.Record.Stage)
	logger.AssertLogContains(t, logs, "failed to record state transition event")
	logger.AssertLogField(t, logs, "error", "audit table unavailable")
	f.assertExpectations(t)
}

func TestCreateDraft(t *testing.T) {
	t.Parallel()
	f := newCurationFixture(t)
	svc := f.transitionService(t)

	f.stages.On("CreateDraft", mock.Anything, mock.AnythingOfType("*domain.StageRecord")).Return(nil)

	record, err := svc.CreateDraft(context.Background(), domain.KindUtterance, json.RawMessage(`{"text":"hola"}`), "import")
	require.NoError(t, err)
	assert.Equal(t, domain.StageDraft, record.Stage)
	assert.Equal(t, "import", record.Source)

	_, err = svc.CreateDraft(context.Background(), domain.ContentKind("idiom"), json.RawMessage(`{}`), "")
	assert.ErrorIs(t, err, domain.ErrInvalidKind)

	_, err = svc.CreateDraft(context.Background(), domain.KindRule, json.RawMessage(`not json`), "")
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)

	f.assertExpectations(t)
}

func TestNewTransitionServiceRequiresDependencies(t *testing.T) {
	t.Parallel()
	f := newCurationFixture(t)

	_, err := NewTransitionService(nil, f.stages, f.approvals, f.pipelines, f.emitter, nil)
	var curationErr *CurationError
	require.ErrorAs(t, err, &curationErr)
	assert.Equal(t, "create_service", curationErr.Operation)

	_, err = NewTransitionService(f.db, f.stages, f.approvals, f.pipelines, nil, nil)
	assert.Error(t, err)
}
