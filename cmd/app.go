package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"civicpulse-be/apperr"
	"civicpulse-be/bus"
	"civicpulse-be/config"
	"civicpulse-be/logging"
	"civicpulse-be/services"
	"civicpulse-be/store"
	"civicpulse-be/triage"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// app holds the process-wide dependencies built from config.
type app struct {
	cfg    config.Config
	store  store.Store
	redis  *redis.Client
	bus    bus.Bus
	triage *triage.Client
	core   *services.Core
}

func loadConfig(cmd *cobra.Command) (config.Config, context.Context, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, cmd.Context(), fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	logging.SetDefault(logger)
	ctx := logging.WithLogger(cmd.Context(), logger)
	ctx = logging.WithAttrs(ctx,
		slog.String("app", "civicpulse"),
		slog.String("command", cmd.CommandPath()))
	return cfg, ctx, nil
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.Driver {
	case "mongo":
		client, db, err := config.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		logging.Info(ctx, "connected to mongo", slog.String("database", cfg.MongoDatabase))
		return store.NewMongoStore(client, db), nil
	default:
		s, err := store.OpenSQL(ctx, cfg.Driver, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		logging.Info(ctx, "connected to sql store", slog.String("driver", cfg.Driver))
		return s, nil
	}
}

// withApp builds the dependencies, runs fn and tears everything down.
func withApp(fn func(ctx context.Context, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, ctx, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		a := &app{cfg: cfg}
		defer a.close(ctx)

		if a.store, err = openStore(ctx, cfg); err != nil {
			return apperr.Upstream(err, "open store")
		}
		if cfg.RedisURL != "" {
			if a.redis, err = config.ConnectRedis(ctx, cfg.RedisURL); err != nil {
				return apperr.Upstream(err, "connect redis")
			}
			a.bus = bus.NewRedisBus(a.redis, cfg.RedisChannelPrefix)
			logging.Info(ctx, "connected to redis")
		} else {
			a.bus = bus.NewMemoryBus()
			logging.Warn(ctx, "REDIS_URL not set: realtime fan-out is in-process and rate limiting is off")
		}

		a.triage = triage.New(triage.Config{
			BaseURL: cfg.AIBaseURL,
			APIKey:  cfg.AIAPIKey,
			Model:   cfg.AIModel,
			Timeout: cfg.AITimeout,
		})
		opts := services.Options{ClassifyTimeout: cfg.AITimeout}
		if a.triage != nil {
			opts.Classifier = a.triage
		}
		a.core = services.NewCore(a.store, a.bus, opts)
		return fn(ctx, a)
	}
}

func (a *app) close(ctx context.Context) {
	var errs []error
	if a.bus != nil {
		errs = append(errs, a.bus.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close(context.WithoutCancel(ctx)))
	}
	if err := errors.Join(errs...); err != nil {
		logging.Warn(ctx, "shutdown cleanup failed", slog.Any("err", apperr.Loggable(err)))
	}
}
