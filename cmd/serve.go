package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"civicpulse-be/apperr"
	"civicpulse-be/logging"
	"civicpulse-be/routes"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var migrateOnStart bool

// serveCmd runs the HTTP API until SIGINT or SIGTERM.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: withApp(func(ctx context.Context, a *app) error {
		if a.cfg.Production() {
			gin.SetMode(gin.ReleaseMode)
		}
		if migrateOnStart {
			if err := a.store.Migrate(ctx); err != nil {
				return apperr.Upstream(err, "migrate")
			}
		}

		deps := routes.Deps{Config: a.cfg, Core: a.core, Redis: a.redis}
		if a.triage != nil {
			deps.Verifier = a.triage
		}
		logging.Info(ctx, "ai triage", slog.Bool("enabled", a.triage != nil))

		ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Request contexts derive from baseCtx so open streams end on shutdown.
		baseCtx, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
		defer cancelBase()
		server := &http.Server{
			Addr:              a.cfg.Addr,
			Handler:           routes.Setup(deps),
			BaseContext:       func(net.Listener) context.Context { return baseCtx },
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logging.Info(ctx, "api listening", slog.String("addr", a.cfg.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		logging.Info(ctx, "shutting down")
		cancelBase()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Error(ctx, "shutdown error", slog.Any("err", apperr.Loggable(err)))
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", true, "Create indexes and tables before serving")
}
