// Package service contains the curation use cases. It orchestrates the
// domain types and the repositories defined in internal/store to move content
// through DRAFT -> CANDIDATE -> VALIDATED -> APPROVED.
//
// Key components:
//
// 1. TransitionService:
//   - Promotes an item by exactly one stage, writing a new row that references its predecessor
//   - Normalizes payloads on DRAFT -> CANDIDATE and records approvals on -> APPROVED
//
// 2. ValidationService and ReviewService:
//   - Record gate rejections with gap-free retry counts
//   - Escalate candidates past the retry ceiling into the manual review queue
//
// 3. ApprovalService and ImmutabilityGuard:
//   - Keep the append-only approval ledger and deprecations
//   - Refuse and audit every attempted mutation of approved content
//
// 4. PipelineService:
//   - Tracks item and document tasks and derives document pipeline progress
//
// Multi-row operations run inside store.RunInTransaction using the WithTx
// form of each store. Errors leave the package in the domain taxonomy
// (domain.ErrNotFound, domain.ErrConflict, ...) so callers can use errors.Is.
package service
