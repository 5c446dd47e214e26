package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/phrazzld/scry-curator/internal/platform/postgres"
	"github.com/spf13/cobra"
)

func newMigrateCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate <" + strings.Join(postgres.MigrationCommands, "|") + ">",
		Short:     "Run database schema migrations",
		ValidArgs: postgres.MigrationCommands,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := args[0]
			ctx := cmd.Context()

			db, err := cc.connect(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if err := db.Close(); err != nil {
					cc.logger.Error("failed to close database connection", slog.String("error", err.Error()))
				}
			}()

			if err := postgres.Migrate(ctx, db, command); err != nil {
				return fmt.Errorf("migrate %s: %w", command, err)
			}
			return nil
		},
	}
}
