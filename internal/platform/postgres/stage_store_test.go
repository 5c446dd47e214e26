package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/scry-curator/internal/domain"
	"github.com/phrazzld/scry-curator/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	draftColumns     = []string{"id", "kind", "payload", "source", "created_at"}
	candidateColumns = []string{"id", "draft_id", "kind", "payload", "created_at"}
	validatedColumns = []string{"id", "candidate_id", "kind", "payload", "created_at"}
)

const meaningJSON = `{"lemma":"casa","definition":"house","language":"es","part_of_speech":"noun","level":"A1"}`

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestNewPostgresStageStore(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { NewPostgresStageStore(nil, nil) })

	db, _ := newMockDB(t)
	s := NewPostgresStageStore(db, nil)
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.WithTx(&sql.Tx{}))
}

func TestStageStoreCreateDraft(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("inserts a draft", func(t *testing.T) {
		t.Parallel()
		db, mock := newMockDB(t)
		draft, err := domain.NewDraft(domain.KindMeaning, json.RawMessage(meaningJSON), "import")
		require.NoError(t, err)

		mock.ExpectExec(q("INSERT INTO content_drafts")).
			WithArgs(draft.ID, "meaning", []byte(meaningJSON), "import", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, NewPostgresStageStore(db, nil).CreateDraft(ctx, draft))
	})

	t.Run("rejects records of another stage", func(t *testing.T) {
		t.Parallel()
		db, _ := newMockDB(t)
		record := &domain.StageRecord{
			ID:       uuid.New(),
			Stage:    domain.StageCandidate,
			Kind:     domain.KindMeaning,
			ParentID: uuid.New(),
			Payload:  json.RawMessage(meaningJSON),
		}

		err := NewPostgresStageStore(db, nil).CreateDraft(ctx, record)
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
	})
}

func TestStageStoreInsert(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	approved := func() *domain.StageRecord {
		return &domain.StageRecord{
			ID:        uuid.New(),
			Stage:     domain.StageApproved,
			Kind:      domain.KindMeaning,
			ParentID:  uuid.New(),
			Payload:   json.RawMessage(meaningJSON),
			CreatedAt: time.Now().UTC(),
		}
	}

	t.Run("approved meaning fills typed columns", func(t *testing.T) {
		t.Parallel()
		db, mock := newMockDB(t)
		record := approved()

		mock.ExpectExec(q("INSERT INTO approved_meanings")).
			WithArgs(record.ID, record.ParentID, "casa", "house", "es", "noun", "A1",
				[]byte(meaningJSON), record.CreatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, NewPostgresStageStore(db, nil).Insert(ctx, record))
	})

	t.Run("approved payload that does not decode is invalid", func(t *testing.T) {
		t.Parallel()
		db, _ := newMockDB(t)
		record := approved()
		record.Payload = json.RawMessage(`{"lemma":"casa"}`)

		err := NewPostgresStageStore(db, nil).Insert(ctx, record)
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
	})

	t.Run("second promotion of the same parent", func(t *testing.T) {
		t.Parallel()
		db, mock := newMockDB(t)
		record := &domain.StageRecord{
			ID:        uuid.New(),
			Stage:     domain.StageCandidate,
			Kind:      domain.KindMeaning,
			ParentID:  uuid.New(),
			Payload:   json.RawMessage(meaningJSON),
			CreatedAt: time.Now().UTC(),
		}

		mock.ExpectExec(q("INSERT INTO content_candidates")).
			WillReturnError(&pgconn.PgError{Code: uniqueViolationCode})

		err := NewPostgresStageStore(db, nil).Insert(ctx, record)
		assert.ErrorIs(t, err, store.ErrRecordExists)
		assert.ErrorIs(t, err, store.ErrDuplicate)
	})

	t.Run("drafts are not inserted here", func(t *testing.T) {
		t.Parallel()
		db, _ := newMockDB(t)
		draft, err := domain.NewDraft(domain.KindMeaning, json.RawMessage(meaningJSON), "")
		require.NoError(t, err)

		err = NewPostgresStageStore(db, nil).Insert(ctx, draft)
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
	})
}

func TestStageStoreGetRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("missing row", func(t *testing.T) {
		t.Parallel()
		db, mock := newMockDB(t)
		id := uuid.New()

		mock.ExpectQuery(q("FROM content_drafts")).
			WithArgs(id, "rule").
			WillReturnRows(sqlmock.NewRows(draftColumns))

		_, err := NewPostgresStageStore(db, nil).GetRecord(ctx, domain.StageDraft, domain.KindRule, id)
		assert.ErrorIs(t, err, store.ErrRecordNotFound)
	})

	t.Run("unknown stage", func(t *testing.T) {
		t.Parallel()
		db, _ := newMockDB(t)

		_, err := NewPostgresStageStore(db, nil).GetRecord(ctx, "ARCHIVED", domain.KindRule, uuid.New())
		assert.ErrorIs(t, err, domain.ErrInvalidStage)
	})
}

func TestStageStoreGetLineage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Now().UTC()
	draftID, candidateID, validatedID := uuid.New(), uuid.New(), uuid.New()

	t.Run("walks back to the draft", func(t *testing.T) {
		t.Parallel()
		db, mock := newMockDB(t)

		mock.ExpectQuery(q("FROM content_validated")).
			WithArgs(validatedID, "meaning").
			WillReturnRows(sqlmock.NewRows(validatedColumns).
				AddRow(validatedID.String(), candidateID.String(), "meaning", []byte(meaningJSON), now))
		mock.ExpectQuery(q("FROM content_candidates")).
			WithArgs(candidateID, "meaning").
			WillReturnRows(sqlmock.NewRows(candidateColumns).
				AddRow(candidateID.String(), draftID.String(), "meaning", []byte(meaningJSON), now))
		mock.ExpectQuery(q("FROM content_drafts")).
			WithArgs(draftID, "meaning").
			WillReturnRows(sqlmock.NewRows(draftColumns).
				AddRow(draftID.String(), "meaning", []byte(meaningJSON), "import", now))

		chain, err := NewPostgresStageStore(db, nil).GetLineage(ctx, domain.StageValidated, domain.KindMeaning, validatedID)
		require.NoError(t, err)
		require.Len(t, chain, 3)
		assert.True(t, chain.Complete())
		assert.Equal(t, draftID, chain[0].ID)
		assert.Equal(t, "import", chain[0].Source)
		assert.Equal(t, validatedID, chain.Head().ID)
	})

	t.Run("missing predecessor is reported as broken", func(t *testing.T) {
		t.Parallel()
		db, mock := newMockDB(t)

		mock.ExpectQuery(q("FROM content_validated")).
			WillReturnRows(sqlmock.NewRows(validatedColumns).
				AddRow(validatedID.String(), candidateID.String(), "meaning", []byte(meaningJSON), now))
		mock.ExpectQuery(q("FROM content_candidates")).
			WillReturnRows(sqlmock.NewRows(candidateColumns))

		_, err := NewPostgresStageStore(db, nil).GetLineage(ctx, domain.StageValidated, domain.KindMeaning, validatedID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorContains(t, err, "broken lineage")

		var storeErr *store.StoreError
		require.ErrorAs(t, err, &storeErr)
		assert.Equal(t, "get lineage", storeErr.Operation)
		assert.Equal(t, "stage record", storeErr.Entity)
	})
}

func TestStageStoreCurrentStage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	id := uuid.New()

	db, mock := newMockDB(t)
	mock.ExpectQuery(q("ORDER BY rank")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"stage", "kind"}).AddRow("CANDIDATE", "utterance"))
	mock.ExpectQuery(q("ORDER BY rank")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"stage", "kind"}))

	s := NewPostgresStageStore(db, nil)
	stage, kind, err := s.CurrentStage(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StageCandidate, stage)
	assert.Equal(t, domain.KindUtterance, kind)

	_, _, err = s.CurrentStage(ctx, id)
	assert.ErrorIs(t, err, store.ErrRecordNotFound)
}

func TestStageStoreTransitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db, mock := newMockDB(t)
	s := NewPostgresStageStore(db, nil)

	event := &domain.StateTransitionEvent{
		ID:        uuid.New(),
		ItemID:    uuid.New(),
		SourceID:  uuid.New(),
		Kind:      domain.KindMeaning,
		FromStage: domain.StageDraft,
		ToStage:   domain.StageCandidate,
		Metadata:  map[string]string{"actor": "ingest"},
		CreatedAt: time.Now().UTC(),
	}

	mock.ExpectExec(q("INSERT INTO state_transition_events")).
		WithArgs(event.ID, event.ItemID, event.SourceID, "meaning", "DRAFT", "CANDIDATE",
			[]byte(`{"actor":"ingest"}`), event.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.RecordTransition(ctx, event))

	mock.ExpectQuery(q("FROM state_transition_events")).
		WithArgs(event.ItemID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "item_id", "source_id", "kind", "from_stage", "to_stage", "metadata", "created_at",
		}).AddRow(event.ID.String(), event.ItemID.String(), event.SourceID.String(), "meaning", "DRAFT", "CANDIDATE",
			[]byte(`{"actor":"ingest"}`), event.CreatedAt))

	got, err := s.ListTransitions(ctx, event.ItemID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, event.Metadata, got[0].Metadata)
	assert.Equal(t, domain.StageCandidate, got[0].ToStage)
}
