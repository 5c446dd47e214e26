package task

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Reclaimer fails pipeline tasks that have been processing for too long.
type Reclaimer interface {
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// MonitorConfig holds configuration for the stale task monitor
type MonitorConfig struct {
	// StaleTaskAge defines how long a task can be in processing state
	// before it's considered stale and failed
	StaleTaskAge time.Duration

	// CheckInterval defines how often to check for stale tasks
	// If zero, defaults to 5 minutes
	CheckInterval time.Duration
}

// DefaultMonitorConfig returns a MonitorConfig with reasonable defaults
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		StaleTaskAge:  30 * time.Minute,
		CheckInterval: 5 * time.Minute,
	}
}

// Monitor periodically fails processing tasks whose worker went away, so that
// their pipelines do not stay in processing forever. Failed tasks can then be
// retried by their producer.
type Monitor struct {
	reclaimer  Reclaimer
	config     MonitorConfig
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
	logger     *slog.Logger
}

// NewMonitor creates a new Monitor
func NewMonitor(reclaimer Reclaimer, config MonitorConfig, logger *slog.Logger) *Monitor {
	defaults := DefaultMonitorConfig()
	if config.CheckInterval <= 0 {
		config.CheckInterval = defaults.CheckInterval
	}
	if config.StaleTaskAge <= 0 {
		config.StaleTaskAge = defaults.StaleTaskAge
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Monitor{
		reclaimer:  reclaimer,
		config:     config,
		ctx:        ctx,
		cancelFunc: cancel,
		logger:     logger.With(slog.String("component", "stale_task_monitor")),
	}
}

// Start launches the monitor goroutine.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.run()
}

// Stop cancels the monitor and waits for an in-flight check to finish.
func (m *Monitor) Stop() {
	m.once.Do(m.cancelFunc)
	m.wg.Wait()
}

// Check runs a single reclaim pass.
func (m *Monitor) Check(ctx context.Context) int {
	n, err := m.reclaimer.ReclaimStale(ctx, m.config.StaleTaskAge)
	if err != nil {
		m.logger.Error("failed to reclaim stale tasks", slog.String("error", err.Error()))
		return n
	}
	if n > 0 {
		m.logger.Info("failed stale tasks",
			slog.Int("count", n),
			slog.Duration("stale_task_age", m.config.StaleTaskAge))
	}
	return n
}

func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.Check(m.ctx)
		}
	}
}
