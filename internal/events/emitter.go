package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// InMemoryEventEmitter dispatches curation events synchronously to handlers
// registered in process.
type InMemoryEventEmitter struct {
	handlers []EventHandler
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewInMemoryEventEmitter creates a new instance of InMemoryEventEmitter.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryEventEmitter{
		logger: logger.With(slog.String("component", "curation_event_emitter")),
	}
}

// RegisterHandler adds a handler. Handlers registered while an event is being
// dispatched receive the next event, not the current one.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, handler)
	e.logger.Debug("registered curation event handler", slog.Int("handler_count", len(e.handlers)))
}

// EmitEvent delivers event to every registered handler in registration order.
// A failing handler does not stop delivery to the rest; the first failure is
// returned so the caller can log it. Callers emit only after commit, so the
// returned error never undoes curation work.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *CurationEvent) error {
	e.mu.RLock()
	handlers := append([]EventHandler(nil), e.handlers...)
	e.mu.RUnlock()

	attrs := []any{
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", event.Type),
		slog.String("item_id", event.ItemID.String()),
	}
	e.logger.Debug("dispatching curation event", append(attrs, slog.Int("handler_count", len(handlers)))...)

	var firstErr error
	for i, handler := range handlers {
		err := handler.HandleEvent(ctx, event)
		if err == nil {
			continue
		}
		e.logger.Error("handler failed to process event",
			append(attrs, slog.String("error", err.Error()), slog.Int("handler_index", i))...)
		if firstErr == nil {
			firstErr = fmt.Errorf("%s handler %d: %w", event.Type, i, err)
		}
	}
	return firstErr
}

// LoggingHandler writes every event to a structured logger.
type LoggingHandler struct {
	logger *slog.Logger
}

// NewLoggingHandler creates a handler that logs events at info level, or
// warn level for content violations.
func NewLoggingHandler(logger *slog.Logger) *LoggingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingHandler{logger: logger.With("component", "curation_events")}
}

// HandleEvent implements EventHandler.
func (h *LoggingHandler) HandleEvent(ctx context.Context, event *CurationEvent) error {
	level := slog.LevelInfo
	if event.Type == TypeContentViolation {
		level = slog.LevelWarn
	}
	h.logger.Log(ctx, level, "curation event",
		"event_id", event.ID,
		"event_type", event.Type,
		"item_id", event.ItemID,
		"payload", string(event.Payload))
	return nil
}
