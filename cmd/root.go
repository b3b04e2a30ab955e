package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"civicpulse-be/apperr"
	"civicpulse-be/logging"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:          "civicpulse",
	Short:        "Civic issue reporting and engagement API",
	Long:         "CivicPulse serves issue reports, votes, comments, status changes and realtime notifications.",
	SilenceUsage: true,
}

// Execute runs the root command. It is called once by main.main().
func Execute(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	// replaced by the configured logger once config is loaded
	logger := logging.New(os.Stderr, "info", "text")
	ctx = logging.WithLogger(ctx, logger)
	ctx = logging.WithAttrs(ctx, slog.String("app", "civicpulse"))
	rootCmd.SetContext(ctx)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.Error(ctx, "command execution failed", slog.Any("err", apperr.Loggable(err)))
		return err
	}
	return nil
}
