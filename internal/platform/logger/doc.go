// Package logger provides structured logging for the curator.
//
// It builds JSON loggers on log/slog with a configurable level and carries
// loggers through context.Context so stores and services log with
// request-scoped attributes.
package logger
