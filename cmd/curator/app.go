package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/scry-curator/internal/config"
	"github.com/phrazzld/scry-curator/internal/domain"
	"github.com/phrazzld/scry-curator/internal/events"
	"github.com/phrazzld/scry-curator/internal/platform/postgres"
	"github.com/phrazzld/scry-curator/internal/service"
	"github.com/phrazzld/scry-curator/internal/task"
)

// shutdownTimeout bounds how long in-flight health requests may take to drain.
const shutdownTimeout = 10 * time.Second

// application holds the shared dependencies of the long-running process.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	emitter *events.InMemoryEventEmitter

	// retryPolicy governs escalation of rejected candidates.
	retryPolicy domain.RetryPolicy

	transitions service.TransitionService
	validation  service.ValidationService
	reviews     service.ReviewService
	approvals   service.ApprovalService
	guard       service.ImmutabilityGuard
	pipelines   service.PipelineService

	monitor *task.Monitor
}

// newApplication wires stores and services over db.
func newApplication(cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config:      cfg,
		logger:      logger,
		db:          db,
		retryPolicy: cfg.Curation.RetryPolicy(),
	}

	stages := postgres.NewPostgresStageStore(db, logger)
	failures := postgres.NewPostgresValidationFailureStore(db, logger)
	reviewStore := postgres.NewPostgresReviewQueueStore(db, logger)
	approvalStore := postgres.NewPostgresApprovalStore(db, logger)
	violations := postgres.NewPostgresViolationStore(db, logger)
	pipelineStore := postgres.NewPostgresPipelineStore(db, logger)
	taskEvents := postgres.NewPostgresPipelineEventStore(db, logger)

	app.emitter = events.NewInMemoryEventEmitter(logger)
	app.emitter.RegisterHandler(events.NewLoggingHandler(logger))

	var err error
	if app.transitions, err = service.NewTransitionService(
		db, stages, approvalStore, pipelineStore, app.emitter, logger,
	); err != nil {
		return nil, fmt.Errorf("failed to create transition service: %w", err)
	}
	if app.validation, err = service.NewValidationService(
		db, stages, failures, reviewStore, approvalStore, pipelineStore, app.emitter, logger,
	); err != nil {
		return nil, fmt.Errorf("failed to create validation service: %w", err)
	}
	if app.reviews, err = service.NewReviewService(db, reviewStore, logger); err != nil {
		return nil, fmt.Errorf("failed to create review service: %w", err)
	}
	if app.approvals, err = service.NewApprovalService(
		db, stages, approvalStore, pipelineStore, app.emitter, logger,
	); err != nil {
		return nil, fmt.Errorf("failed to create approval service: %w", err)
	}
	if app.guard, err = service.NewImmutabilityGuard(db, stages, violations, app.emitter, logger); err != nil {
		return nil, fmt.Errorf("failed to create immutability guard: %w", err)
	}
	if app.pipelines, err = service.NewPipelineService(db, stages, pipelineStore, taskEvents, logger); err != nil {
		return nil, fmt.Errorf("failed to create pipeline service: %w", err)
	}

	app.monitor = task.NewMonitor(app.pipelines, task.MonitorConfig{
		StaleTaskAge:  cfg.Curation.StaleTaskAge,
		CheckInterval: cfg.Curation.StaleTaskCheckInterval,
	}, logger)

	logger.Info("application initialized",
		slog.Int("max_validation_retries", app.retryPolicy.MaxRetries),
		slog.Int("review_priority", app.retryPolicy.Priority()),
		slog.Duration("stale_task_age", cfg.Curation.StaleTaskAge))
	return app, nil
}

// Run starts the stale task monitor and the health server and blocks until
// ctx is canceled or the server fails.
func (app *application) Run(ctx context.Context) error {
	app.monitor.Start()
	defer app.monitor.Stop()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.HealthPort),
		Handler:           app.setupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		app.logger.Info("starting health server", slog.Int("port", app.config.Server.HealthPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		app.logger.Info("shutting down")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("health server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// cleanup releases the database connection.
func (app *application) cleanup() {
	if app.monitor != nil {
		app.monitor.Stop()
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", slog.String("error", err.Error()))
		}
	}
	app.logger.Info("application shutdown completed")
}
