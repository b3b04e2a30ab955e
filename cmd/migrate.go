package cmd

import (
	"context"
	"fmt"

	"civicpulse-be/apperr"
	"civicpulse-be/logging"

	"github.com/spf13/cobra"
)

// migrateCmd creates indexes (mongo) or tables (sql), including the unique
// (issue, user) vote key.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the store schema and indexes",
	RunE: withApp(func(ctx context.Context, a *app) error {
		logging.Info(ctx, "start migrate")
		if err := a.store.Migrate(ctx); err != nil {
			return apperr.Upstream(err, "migrate")
		}
		logging.Info(ctx, "migrate finished")
		_, err := fmt.Fprintf(rootCmd.OutOrStdout(), "schema ready (%s)\n", a.cfg.Driver)
		return err
	}),
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
