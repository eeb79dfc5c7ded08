package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/autoescrow-backend/internal/app"
	"github.com/angelmondragon/autoescrow-backend/internal/cron"
	"github.com/angelmondragon/autoescrow-backend/pkg/config"
	"github.com/angelmondragon/autoescrow-backend/pkg/db"
	"github.com/angelmondragon/autoescrow-backend/pkg/logger"
	"github.com/angelmondragon/autoescrow-backend/pkg/metrics"
	"github.com/angelmondragon/autoescrow-backend/pkg/migrate"
	"github.com/angelmondragon/autoescrow-backend/pkg/redis"
)

const outboxRetentionSchedule = "15 3 * * *"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	services, err := app.Build(app.Params{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Redis:      redisClient,
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg, logg, services)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker:"+envName(cfg.App.Env)), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.TickInterval,
		Location: cfg.App.Location(),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"jobs":        len(registry.Jobs()),
	})

	// `cron-worker run <job>` executes one job immediately and exits.
	if len(os.Args) == 3 && os.Args[1] == "run" {
		if err := service.RunNow(ctx, os.Args[2]); err != nil {
			logg.Error(ctx, "manual job run failed", err)
			os.Exit(1)
		}
		return
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, services *app.Services) (*cron.Registry, error) {
	registry := cron.NewRegistry()
	register := func(spec string, job cron.Job, err error) error {
		if err != nil {
			return err
		}
		return registry.Register(spec, job)
	}

	reconcile, err := cron.NewReconciliationJob(logg, services.Reconciliation)
	if err := register(cfg.Cron.ReconciliationSchedule, reconcile, err); err != nil {
		return nil, err
	}
	if cfg.FeatureFlags.AutoRelease {
		release, err := cron.NewAutoReleaseJob(logg, services.Escrow)
		if err := register(cfg.Cron.AutoReleaseSchedule, release, err); err != nil {
			return nil, err
		}
	}
	inspections, err := cron.NewInspectionJob(logg, services.Escrow)
	if err := register(cfg.Cron.InspectionSchedule, inspections, err); err != nil {
		return nil, err
	}
	reminders, err := cron.NewReminderJob(logg, services.Escrow)
	if err := register(cfg.Cron.ReminderSchedule, reminders, err); err != nil {
		return nil, err
	}
	patterns, err := cron.NewPatternJob(logg, services.Reconciliation, time.Hour)
	if err := register(cfg.Cron.PatternSchedule, patterns, err); err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		Repository:  services.Outbox,
		Retention:   cfg.Outbox.Retention,
		MinAttempts: cfg.Outbox.MaxAttempts,
	})
	if err := register(outboxRetentionSchedule, retention, err); err != nil {
		return nil, fmt.Errorf("outbox retention: %w", err)
	}
	return registry, nil
}

func envName(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
