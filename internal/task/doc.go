// Package task runs background maintenance for the pipeline orchestrator.
// The Monitor fails tasks left in processing by workers that went away, so
// pipelines recover without manual intervention.
package task
