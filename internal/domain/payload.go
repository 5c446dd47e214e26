package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"
)

var payloadValidator = validator.New(validator.WithRequiredStructEnabled())

// Payload is the typed content carried by a lineage row. The concrete type is
// determined by the row's ContentKind.
type Payload interface {
	Kind() ContentKind
	normalize() Payload
}

// MeaningPayload describes a vocabulary meaning.
type MeaningPayload struct {
	Lemma        string `json:"lemma"                    validate:"required"`
	Definition   string `json:"definition"               validate:"required"`
	Language     string `json:"language"                 validate:"required,bcp47_language_tag"`
	PartOfSpeech string `json:"part_of_speech,omitempty"`
	Level        string `json:"level,omitempty"          validate:"omitempty,oneof=A1 A2 B1 B2 C1 C2"`
}

// Kind implements Payload.
func (MeaningPayload) Kind() ContentKind { return KindMeaning }

func (p MeaningPayload) normalize() Payload {
	p.Lemma = normalizeText(p.Lemma)
	p.Definition = normalizeText(p.Definition)
	p.Language = strings.TrimSpace(p.Language)
	p.PartOfSpeech = strings.ToLower(normalizeText(p.PartOfSpeech))
	p.Level = strings.ToUpper(strings.TrimSpace(p.Level))
	return p
}

// UtterancePayload describes an example sentence or phrase.
type UtterancePayload struct {
	Text        string `json:"text"                  validate:"required"`
	Translation string `json:"translation,omitempty"`
	Language    string `json:"language"              validate:"required,bcp47_language_tag"`
	Level       string `json:"level,omitempty"       validate:"omitempty,oneof=A1 A2 B1 B2 C1 C2"`
}

// Kind implements Payload.
func (UtterancePayload) Kind() ContentKind { return KindUtterance }

func (p UtterancePayload) normalize() Payload {
	p.Text = normalizeText(p.Text)
	p.Translation = normalizeText(p.Translation)
	p.Language = strings.TrimSpace(p.Language)
	p.Level = strings.ToUpper(strings.TrimSpace(p.Level))
	return p
}

// RulePayload describes a grammar rule.
type RulePayload struct {
	Title       string `json:"title"           validate:"required"`
	Explanation string `json:"explanation"     validate:"required"`
	Language    string `json:"language"        validate:"required,bcp47_language_tag"`
	Level       string `json:"level,omitempty" validate:"omitempty,oneof=A1 A2 B1 B2 C1 C2"`
}

// Kind implements Payload.
func (RulePayload) Kind() ContentKind { return KindRule }

func (p RulePayload) normalize() Payload {
	p.Title = normalizeText(p.Title)
	p.Explanation = normalizeText(p.Explanation)
	p.Language = strings.TrimSpace(p.Language)
	p.Level = strings.ToUpper(strings.TrimSpace(p.Level))
	return p
}

// ExercisePayload describes a practice exercise.
type ExercisePayload struct {
	ExerciseType string `json:"exercise_type" validate:"required,oneof=cloze translation multiple_choice ordering"`
	Prompt       string `json:"prompt"        validate:"required"`
	Answer       string `json:"answer"        validate:"required"`
	Language     string `json:"language"      validate:"required,bcp47_language_tag"`
}

// Kind implements Payload.
func (ExercisePayload) Kind() ContentKind { return KindExercise }

func (p ExercisePayload) normalize() Payload {
	p.ExerciseType = strings.ToLower(strings.TrimSpace(p.ExerciseType))
	p.Prompt = normalizeText(p.Prompt)
	p.Answer = normalizeText(p.Answer)
	p.Language = strings.TrimSpace(p.Language)
	return p
}

// DecodePayload parses raw JSON into the payload type for kind and validates it.
func DecodePayload(kind ContentKind, raw json.RawMessage) (Payload, error) {
	p, err := unmarshalPayload(kind, raw)
	if err != nil {
		return nil, err
	}
	if err := payloadValidator.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, kind, err)
	}
	return p, nil
}

// NormalizePayload decodes raw for kind, applies Unicode NFC normalization and
// whitespace cleanup to every text field, validates and re-encodes it.
// This is the normalization applied when a draft becomes a candidate.
func NormalizePayload(kind ContentKind, raw json.RawMessage) (json.RawMessage, error) {
	p, err := unmarshalPayload(kind, raw)
	if err != nil {
		return nil, err
	}
	n := p.normalize()
	if err := payloadValidator.Struct(n); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, kind, err)
	}
	out, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encode normalized payload: %w", err)
	}
	return out, nil
}

func unmarshalPayload(kind ContentKind, raw json.RawMessage) (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch kind {
	case KindMeaning:
		var m MeaningPayload
		err = json.Unmarshal(raw, &m)
		p = m
	case KindUtterance:
		var u UtterancePayload
		err = json.Unmarshal(raw, &u)
		p = u
	case KindRule:
		var r RulePayload
		err = json.Unmarshal(raw, &r)
		p = r
	case KindExercise:
		var e ExercisePayload
		err = json.Unmarshal(raw, &e)
		p = e
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, kind, err)
	}
	return p, nil
}

func normalizeText(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}
