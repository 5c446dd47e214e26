package config

import (
	"time"

	"github.com/phrazzld/scry-curator/internal/domain"
)

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Curation CurationConfig `mapstructure:"curation" validate:"required"`
}

// ServerConfig contains process-level settings.
type ServerConfig struct {
	LogLevel   string `mapstructure:"log_level"   validate:"required,oneof=debug info warn error"`
	HealthPort int    `mapstructure:"health_port" validate:"required,gt=0,lt=65536"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"               validate:"required,url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"    validate:"gte=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    validate:"gte=0,ltefield=MaxOpenConns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

// CurationConfig contains pipeline policy settings.
type CurationConfig struct {
	// MaxValidationRetries is the number of automatic validation retries
	// before a candidate is routed to manual review.
	MaxValidationRetries int `mapstructure:"max_validation_retries" validate:"gte=0"`
	// ReviewPriority is the queue priority for escalated items (lower is more urgent).
	ReviewPriority int `mapstructure:"review_priority" validate:"gte=1"`
	// StaleTaskAge is how long a task may stay in processing before it is reclaimed.
	StaleTaskAge time.Duration `mapstructure:"stale_task_age" validate:"gt=0"`
	// StaleTaskCheckInterval is how often the monitor looks for stale tasks.
	StaleTaskCheckInterval time.Duration `mapstructure:"stale_task_check_interval" validate:"gt=0"`
}

// RetryPolicy returns the escalation policy applied to validation failures.
func (c CurationConfig) RetryPolicy() domain.RetryPolicy {
	return domain.RetryPolicy{
		MaxRetries:     c.MaxValidationRetries,
		ReviewPriority: c.ReviewPriority,
	}
}
