package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultReviewPriority is the queue priority used when a candidate exhausts
// its automatic validation retries. Lower values are more urgent.
const DefaultReviewPriority = 5

// Validation errors for failure records.
var (
	ErrEmptyCandidateRef = errors.New("validation failure must reference a candidate")
	ErrEmptyGateName     = errors.New("gate name cannot be empty")
	ErrInvalidRetryCount = errors.New("retry count must be positive")
)

// GateResult is the verdict of one validation gate for one candidate payload.
type GateResult struct {
	Passed   bool            `json:"passed"`
	GateName string          `json:"gate_name"`
	Reason   string          `json:"reason,omitempty"`
	Details  json.RawMessage `json:"details,omitempty"`
}

// ValidationFailure records one gate rejection of a candidate. Each new
// rejection of the same candidate is a new row with RetryCount one higher
// than the previous row.
type ValidationFailure struct {
	ID          uuid.UUID       `json:"id"`
	CandidateID uuid.UUID       `json:"candidate_id"`
	GateName    string          `json:"gate_name"`
	Reason      string          `json:"reason"`
	Details     json.RawMessage `json:"details,omitempty"`
	RetryCount  int             `json:"retry_count"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Validate checks the invariants of a failure record.
func (f *ValidationFailure) Validate() error {
	if f.CandidateID == uuid.Nil {
		return ErrEmptyCandidateRef
	}
	if strings.TrimSpace(f.GateName) == "" {
		return ErrEmptyGateName
	}
	if f.RetryCount < 1 {
		return ErrInvalidRetryCount
	}
	if len(f.Details) > 0 && !json.Valid(f.Details) {
		return ErrInvalidPayload
	}
	return nil
}

// RetryPolicy is the caller-supplied ceiling on automatic validation retries.
type RetryPolicy struct {
	// MaxRetries is the highest retry count that is still retried automatically.
	MaxRetries int
	// ReviewPriority is the queue priority used on escalation.
	ReviewPriority int
}

// DefaultRetryPolicy returns a policy allowing three automatic retries.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, ReviewPriority: DefaultReviewPriority}
}

// Exceeded reports whether retryCount is past the ceiling and the item must
// be routed to manual review.
func (p RetryPolicy) Exceeded(retryCount int) bool {
	return retryCount > p.MaxRetries
}

// Priority returns the escalation priority, falling back to the default.
func (p RetryPolicy) Priority() int {
	if p.ReviewPriority <= 0 {
		return DefaultReviewPriority
	}
	return p.ReviewPriority
}
