package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// withApplication connects to the database, builds the application and
// releases it when fn returns.
func withApplication(cmd *cobra.Command, cc *commandContext, fn func(app *application) error) error {
	db, err := cc.connect(cmd.Context())
	if err != nil {
		return err
	}

	app, err := newApplication(cc.cfg, cc.logger, db)
	if err != nil {
		if cerr := db.Close(); cerr != nil {
			cc.logger.Error("failed to close database connection", slog.String("error", cerr.Error()))
		}
		return err
	}
	defer app.cleanup()

	return fn(app)
}

func newServeCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the stale task monitor and health endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, cc, func(app *application) error {
				return app.Run(cmd.Context())
			})
		},
	}
}

func newReclaimCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reclaim",
		Short: "Fail tasks stuck in processing once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, cc, func(app *application) error {
				n := app.monitor.Check(cmd.Context())
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "reclaimed %d stale tasks\n", n)
				return err
			})
		},
	}
}

func newReviewCommand(cc *commandContext) *cobra.Command {
	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Inspect the manual review queue",
	}

	var limit, offset int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print unresolved review entries as JSON lines, most urgent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, cc, func(app *application) error {
				entries, err := app.reviews.ListPending(cmd.Context(), limit, offset)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, e := range entries {
					if err := enc.Encode(e); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 50, "maximum number of entries")
	listCmd.Flags().IntVar(&offset, "offset", 0, "number of entries to skip")

	reviewCmd.AddCommand(listCmd)
	return reviewCmd
}
