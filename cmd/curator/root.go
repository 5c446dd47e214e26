package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/scry-curator/internal/config"
	"github.com/phrazzld/scry-curator/internal/platform/logger"
	"github.com/phrazzld/scry-curator/internal/platform/postgres"
	"github.com/spf13/cobra"
)

// commandContext carries what every subcommand needs once the root command
// has loaded configuration.
type commandContext struct {
	cfg    *config.Config
	logger *slog.Logger

	// loadConfig and openDB are replaced in tests.
	loadConfig func() (*config.Config, error)
	openDB     func(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error)
}

func newCommandContext() *commandContext {
	return &commandContext{
		loadConfig: config.Load,
		openDB:     postgres.Open,
	}
}

// init loads configuration and installs the process logger.
func (c *commandContext) init() error {
	cfg, err := c.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	c.cfg = cfg
	c.logger = l
	return nil
}

// connect opens the configured database and logs where it points.
func (c *commandContext) connect(ctx context.Context) (*sql.DB, error) {
	c.logger.Info("connecting to database",
		slog.String("url", maskDatabaseURL(c.cfg.Database.URL)),
		slog.String("host", extractHostFromURL(c.cfg.Database.URL)))

	db, err := c.openDB(ctx, c.cfg.Database)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func newRootCommand() *cobra.Command {
	return newRootCommandWith(newCommandContext())
}

func newRootCommandWith(cc *commandContext) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "curator",
		Short:         "Scry content curation pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.HasParent() {
				return nil
			}
			return cc.init()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newMigrateCommand(cc))
	rootCmd.AddCommand(newServeCommand(cc))
	rootCmd.AddCommand(newReclaimCommand(cc))
	rootCmd.AddCommand(newReviewCommand(cc))
	rootCmd.AddCommand(newFailureCommand(cc))

	return rootCmd
}
