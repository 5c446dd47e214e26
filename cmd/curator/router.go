package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/scry-curator/internal/redact"
)

// readinessTimeout bounds the database ping behind /readyz.
const readinessTimeout = 2 * time.Second

type pinger interface {
	PingContext(ctx context.Context) error
}

// setupRouter serves liveness and readiness probes.
func (app *application) setupRouter() http.Handler {
	return newHealthRouter(app.db, app.logger)
}

func newHealthRouter(db pinger, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, logger, http.StatusOK, "ok")
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			logger.Warn("readiness check failed",
				slog.String("error", redact.Error(err)),
				slog.String("request_id", middleware.GetReqID(r.Context())))
			writeStatus(w, logger, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		writeStatus(w, logger, http.StatusOK, "ready")
	})

	return r
}

func writeStatus(w http.ResponseWriter, logger *slog.Logger, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]string{"status": status}); err != nil {
		logger.Error("failed to write health response", slog.String("error", err.Error()))
	}
}
