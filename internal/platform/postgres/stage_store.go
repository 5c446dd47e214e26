package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-curator/internal/domain"
	"github.com/phrazzld/scry-curator/internal/platform/logger"
	"github.com/phrazzld/scry-curator/internal/store"
)

// Lineage queries. Each stage and each approved kind has its own constant
// statement; table names are never interpolated.
const (
	insertDraftQuery = `
		INSERT INTO content_drafts (id, kind, payload, source, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	insertCandidateQuery = `
		INSERT INTO content_candidates (id, draft_id, kind, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	insertValidatedQuery = `
		INSERT INTO content_validated (id, candidate_id, kind, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	insertApprovedMeaningQuery = `
		INSERT INTO approved_meanings
			(id, validated_id, lemma, definition, language, part_of_speech, level, payload, approved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	insertApprovedUtteranceQuery = `
		INSERT INTO approved_utterances
			(id, validated_id, text, translation, language, level, payload, approved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	insertApprovedRuleQuery = `
		INSERT INTO approved_rules
			(id, validated_id, title, explanation, language, level, payload, approved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	insertApprovedExerciseQuery = `
		INSERT INTO approved_exercises
			(id, validated_id, exercise_type, prompt, answer, language, payload, approved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	getDraftQuery = `
		SELECT id, kind, payload, source, created_at
		FROM content_drafts
		WHERE id = $1 AND kind = $2
	`
	getCandidateQuery = `
		SELECT id, draft_id, kind, payload, created_at
		FROM content_candidates
		WHERE id = $1 AND kind = $2
	`
	getValidatedQuery = `
		SELECT id, candidate_id, kind, payload, created_at
		FROM content_validated
		WHERE id = $1 AND kind = $2
	`
	getApprovedMeaningQuery = `
		SELECT id, validated_id, payload, approved_at FROM approved_meanings WHERE id = $1
	`
	getApprovedUtteranceQuery = `
		SELECT id, validated_id, payload, approved_at FROM approved_utterances WHERE id = $1
	`
	getApprovedRuleQuery = `
		SELECT id, validated_id, payload, approved_at FROM approved_rules WHERE id = $1
	`
	getApprovedExerciseQuery = `
		SELECT id, validated_id, payload, approved_at FROM approved_exercises WHERE id = $1
	`

	currentStageQuery = `
		SELECT stage, kind FROM (
			SELECT 'APPROVED' AS stage, 'meaning' AS kind, 1 AS rank FROM approved_meanings WHERE id = $1
			UNION ALL
			SELECT 'APPROVED', 'utterance', 1 FROM approved_utterances WHERE id = $1
			UNION ALL
			SELECT 'APPROVED', 'rule', 1 FROM approved_rules WHERE id = $1
			UNION ALL
			SELECT 'APPROVED', 'exercise', 1 FROM approved_exercises WHERE id = $1
			UNION ALL
			SELECT 'VALIDATED', kind, 2 FROM content_validated WHERE id = $1
			UNION ALL
			SELECT 'CANDIDATE', kind, 3 FROM content_candidates WHERE id = $1
			UNION ALL
			SELECT 'DRAFT', kind, 4 FROM content_drafts WHERE id = $1
		) AS found
		ORDER BY rank
		LIMIT 1
	`

	insertTransitionQuery = `
		INSERT INTO state_transition_events
			(id, item_id, source_id, kind, from_stage, to_stage, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	listTransitionsQuery = `
		SELECT id, item_id, source_id, kind, from_stage, to_stage, metadata, created_at
		FROM state_transition_events
		WHERE item_id = $1 OR source_id = $1
		ORDER BY created_at ASC, id ASC
	`
)

// PostgresStageStore implements the store.StageStore interface
// using a PostgreSQL database as the storage backend.
type PostgresStageStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresStageStore creates a new PostgreSQL implementation of the StageStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresStageStore(db store.DBTX, logger *slog.Logger) *PostgresStageStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresStageStore{
		db:     db,
		logger: logger.With(slog.String("component", "stage_store")),
	}
}

// Ensure PostgresStageStore implements store.StageStore interface
var _ store.StageStore = (*PostgresStageStore)(nil)

// WithTx implements store.StageStore.WithTx
func (s *PostgresStageStore) WithTx(tx *sql.Tx) store.StageStore {
	return &PostgresStageStore{
		db:     tx,
		logger: s.logger,
	}
}

// CreateDraft implements store.StageStore.CreateDraft
func (s *PostgresStageStore) CreateDraft(ctx context.Context, record *domain.StageRecord) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if record.Stage != domain.StageDraft {
		return fmt.Errorf("%w: expected DRAFT record, got %s", store.ErrInvalidEntity, record.Stage)
	}
	if err := record.Validate(); err != nil {
		log.Warn("draft validation failed during create",
			slog.String("error", err.Error()),
			slog.String("record_id", record.ID.String()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	_, err := s.db.ExecContext(ctx, insertDraftQuery,
		record.ID,
		record.Kind,
		[]byte(record.Payload),
		record.Source,
		record.CreatedAt,
	)
	if err != nil {
		log.Error("failed to create draft",
			slog.String("error", err.Error()),
			slog.String("record_id", record.ID.String()))
		return MapError(err)
	}

	log.Debug("draft created",
		slog.String("record_id", record.ID.String()),
		slog.String("kind", string(record.Kind)))
	return nil
}

// GetRecord implements store.StageStore.GetRecord
func (s *PostgresStageStore) GetRecord(
	ctx context.Context,
	stage domain.Stage,
	kind domain.ContentKind,
	id uuid.UUID,
) (*domain.StageRecord, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	record := &domain.StageRecord{Stage: stage}
	var (
		payload []byte
		err     error
	)

	switch stage {
	case domain.StageDraft:
		err = s.db.QueryRowContext(ctx, getDraftQuery, id, kind).Scan(
			&record.ID, &record.Kind, &payload, &record.Source, &record.CreatedAt)
	case domain.StageCandidate:
		err = s.db.QueryRowContext(ctx, getCandidateQuery, id, kind).Scan(
			&record.ID, &record.ParentID, &record.Kind, &payload, &record.CreatedAt)
	case domain.StageValidated:
		err = s.db.QueryRowContext(ctx, getValidatedQuery, id, kind).Scan(
			&record.ID, &record.ParentID, &record.Kind, &payload, &record.CreatedAt)
	case domain.StageApproved:
		query, qErr := approvedGetQuery(kind)
		if qErr != nil {
			return nil, qErr
		}
		record.Kind = kind
		err = s.db.QueryRowContext(ctx, query, id).Scan(
			&record.ID, &record.ParentID, &payload, &record.CreatedAt)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStage, stage)
	}

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("stage record not found",
				slog.String("stage", string(stage)),
				slog.String("kind", string(kind)),
				slog.String("record_id", id.String()))
			return nil, store.ErrRecordNotFound
		}
		log.Error("failed to get stage record",
			slog.String("error", err.Error()),
			slog.String("stage", string(stage)),
			slog.String("record_id", id.String()))
		return nil, MapError(err)
	}

	record.Payload = json.RawMessage(payload)
	return record, nil
}

// Insert implements store.StageStore.Insert
func (s *PostgresStageStore) Insert(ctx context.Context, record *domain.StageRecord) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := record.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	var err error
	switch record.Stage {
	case domain.StageCandidate:
		_, err = s.db.ExecContext(ctx, insertCandidateQuery,
			record.ID, record.ParentID, record.Kind, []byte(record.Payload), record.CreatedAt)
	case domain.StageValidated:
		_, err = s.db.ExecContext(ctx, insertValidatedQuery,
			record.ID, record.ParentID, record.Kind, []byte(record.Payload), record.CreatedAt)
	case domain.StageApproved:
		err = s.insertApproved(ctx, record)
	default:
		return fmt.Errorf("%w: cannot insert %s record", store.ErrInvalidEntity, record.Stage)
	}

	if err != nil {
		if IsUniqueViolation(err) {
			log.Info("stage record already promoted",
				slog.String("stage", string(record.Stage)),
				slog.String("parent_id", record.ParentID.String()))
			return MapUniqueViolation(err, store.ErrRecordExists)
		}
		if errors.Is(err, store.ErrInvalidEntity) {
			return err
		}
		log.Error("failed to insert stage record",
			slog.String("error", err.Error()),
			slog.String("stage", string(record.Stage)),
			slog.String("record_id", record.ID.String()))
		return MapError(err)
	}

	log.Debug("stage record inserted",
		slog.String("stage", string(record.Stage)),
		slog.String("record_id", record.ID.String()),
		slog.String("parent_id", record.ParentID.String()))
	return nil
}

// insertApproved maps the payload into the typed columns of the kind's table.
func (s *PostgresStageStore) insertApproved(ctx context.Context, record *domain.StageRecord) error {
	payload, err := domain.DecodePayload(record.Kind, record.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	raw := []byte(record.Payload)
	switch p := payload.(type) {
	case domain.MeaningPayload:
		_, err = s.db.ExecContext(ctx, insertApprovedMeaningQuery,
			record.ID, record.ParentID, p.Lemma, p.Definition, p.Language, p.PartOfSpeech, p.Level,
			raw, record.CreatedAt)
	case domain.UtterancePayload:
		_, err = s.db.ExecContext(ctx, insertApprovedUtteranceQuery,
			record.ID, record.ParentID, p.Text, p.Translation, p.Language, p.Level,
			raw, record.CreatedAt)
	case domain.RulePayload:
		_, err = s.db.ExecContext(ctx, insertApprovedRuleQuery,
			record.ID, record.ParentID, p.Title, p.Explanation, p.Language, p.Level,
			raw, record.CreatedAt)
	case domain.ExercisePayload:
		_, err = s.db.ExecContext(ctx, insertApprovedExerciseQuery,
			record.ID, record.ParentID, p.ExerciseType, p.Prompt, p.Answer, p.Language,
			raw, record.CreatedAt)
	default:
		return fmt.Errorf("%w: %q", domain.ErrInvalidKind, record.Kind)
	}
	return err
}

func approvedGetQuery(kind domain.ContentKind) (string, error) {
	switch kind {
	case domain.KindMeaning:
		return getApprovedMeaningQuery, nil
	case domain.KindUtterance:
		return getApprovedUtteranceQuery, nil
	case domain.KindRule:
		return getApprovedRuleQuery, nil
	case domain.KindExercise:
		return getApprovedExerciseQuery, nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidKind, kind)
	}
}

// GetLineage implements store.StageStore.GetLineage
func (s *PostgresStageStore) GetLineage(
	ctx context.Context,
	stage domain.Stage,
	kind domain.ContentKind,
	id uuid.UUID,
) (domain.Lineage, error) {
	var chain domain.Lineage

	current, currentID := stage, id
	for {
		record, err := s.GetRecord(ctx, current, kind, currentID)
		if err != nil {
			if len(chain) > 0 && errors.Is(err, store.ErrNotFound) {
				return nil, store.NewStoreError("stage record", "get lineage",
					fmt.Sprintf("broken lineage at %s %s", current, currentID), err)
			}
			return nil, err
		}
		chain = append(domain.Lineage{record}, chain...)

		prev, ok := current.Prev()
		if !ok {
			return chain, nil
		}
		current, currentID = prev, record.ParentID
	}
}

// CurrentStage implements store.StageStore.CurrentStage
func (s *PostgresStageStore) CurrentStage(
	ctx context.Context,
	id uuid.UUID,
) (domain.Stage, domain.ContentKind, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var stage, kind string
	err := s.db.QueryRowContext(ctx, currentStageQuery, id).Scan(&stage, &kind)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", store.ErrRecordNotFound
		}
		log.Error("failed to resolve current stage",
			slog.String("error", err.Error()),
			slog.String("record_id", id.String()))
		return "", "", MapError(err)
	}
	return domain.Stage(stage), domain.ContentKind(kind), nil
}

// RecordTransition implements store.StageStore.RecordTransition
func (s *PostgresStageStore) RecordTransition(ctx context.Context, event *domain.StateTransitionEvent) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	metadata, err := encodeMetadata(event.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, insertTransitionQuery,
		event.ID,
		event.ItemID,
		event.SourceID,
		event.Kind,
		event.FromStage,
		event.ToStage,
		metadata,
		event.CreatedAt,
	)
	if err != nil {
		log.Warn("failed to record state transition",
			slog.String("error", err.Error()),
			slog.String("item_id", event.ItemID.String()))
		return MapError(err)
	}
	return nil
}

// ListTransitions implements store.StageStore.ListTransitions
func (s *PostgresStageStore) ListTransitions(
	ctx context.Context,
	id uuid.UUID,
) ([]*domain.StateTransitionEvent, error) {
	rows, err := s.db.QueryContext(ctx, listTransitionsQuery, id)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var events []*domain.StateTransitionEvent
	for rows.Next() {
		var (
			e        domain.StateTransitionEvent
			metadata []byte
		)
		if err := rows.Scan(
			&e.ID, &e.ItemID, &e.SourceID, &e.Kind, &e.FromStage, &e.ToStage, &metadata, &e.CreatedAt,
		); err != nil {
			return nil, MapError(err)
		}
		if e.Metadata, err = decodeMetadata(metadata); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return events, nil
}
