// Package domain contains the core curation entities, value objects, and
// domain rules of the content pipeline: the lineage stages a content item
// passes through, the validation and review records attached to it, the
// approval ledger, and the pipeline task state machine. It is independent
// of any storage or delivery mechanism.
package domain
