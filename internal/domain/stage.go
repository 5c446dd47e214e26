package domain

import "fmt"

// Stage is one of the successive quality tiers of a content item.
type Stage string

// Lineage stages in promotion order.
const (
	StageDraft     Stage = "DRAFT"
	StageCandidate Stage = "CANDIDATE"
	StageValidated Stage = "VALIDATED"
	StageApproved  Stage = "APPROVED"
)

// Stages lists every stage in promotion order.
var Stages = []Stage{StageDraft, StageCandidate, StageValidated, StageApproved}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageDraft, StageCandidate, StageValidated, StageApproved:
		return true
	default:
		return false
	}
}

// Next returns the only stage s may be promoted to. APPROVED is terminal and
// returns false.
func (s Stage) Next() (Stage, bool) {
	switch s {
	case StageDraft:
		return StageCandidate, true
	case StageCandidate:
		return StageValidated, true
	case StageValidated:
		return StageApproved, true
	default:
		return "", false
	}
}

// Prev returns the stage s is promoted from. DRAFT has no predecessor and
// returns false.
func (s Stage) Prev() (Stage, bool) {
	switch s {
	case StageCandidate:
		return StageDraft, true
	case StageValidated:
		return StageCandidate, true
	case StageApproved:
		return StageValidated, true
	default:
		return "", false
	}
}

// CheckTransition verifies that from→to is a single forward step.
func CheckTransition(from, to Stage) error {
	if !from.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStage, from)
	}
	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStage, to)
	}
	next, ok := from.Next()
	if !ok || next != to {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// ContentKind is the closed set of learning content categories.
type ContentKind string

// Content kinds. Each kind has its own approved table.
const (
	KindMeaning   ContentKind = "meaning"
	KindUtterance ContentKind = "utterance"
	KindRule      ContentKind = "rule"
	KindExercise  ContentKind = "exercise"
)

// ContentKinds lists every content kind.
var ContentKinds = []ContentKind{KindMeaning, KindUtterance, KindRule, KindExercise}

// Valid reports whether k is one of the four content kinds.
func (k ContentKind) Valid() bool {
	switch k {
	case KindMeaning, KindUtterance, KindRule, KindExercise:
		return true
	default:
		return false
	}
}

// ParseContentKind converts s into a ContentKind.
func ParseContentKind(s string) (ContentKind, error) {
	k := ContentKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
	return k, nil
}

// ParseStage converts s into a Stage.
func ParseStage(s string) (Stage, error) {
	st := Stage(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStage, s)
	}
	return st, nil
}
