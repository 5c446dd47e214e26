// Package store defines interfaces for curation data persistence.
//
// Every store can be bound to a caller-managed transaction with WithTx so a
// service composes several writes into one atomic unit. Stores expose no
// update or delete operations for lineage rows; the only mutable rows are
// review entries, pipeline tasks and pipeline aggregates.
package store
