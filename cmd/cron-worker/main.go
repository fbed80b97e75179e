package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/packfinderz-order-progress/internal/cron"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/config"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/db"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/instance"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/logger"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/metrics"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/migrate"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/outbox"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/outbox/registry"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/pubsub"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/redis"
)

type eventPublisher interface {
	Publish(ctx context.Context, channel string, message any) (int64, error)
}

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

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
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

	events, err := registry.NewEventRegistry(cfg.Events.ChannelPrefix)
	if err != nil {
		logg.Error(context.Background(), "failed to build event registry", err)
		os.Exit(1)
	}
	outboxRepo := outbox.NewRepository(dbClient.DB())

	var publisher eventPublisher = redisClient
	if cfg.Events.UsesPubSub() {
		pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, logg, events.Channels()...)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		publisher = pubsubClient
	}

	relayJob, err := cron.NewOutboxRelayJob(cron.OutboxRelayJobParams{
		Logger:      logg,
		Repository:  outboxRepo,
		Registry:    events,
		Publisher:   publisher,
		BatchSize:   cfg.Events.BatchSize,
		MaxAttempts: cfg.Events.MaxAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox relay job", err)
		os.Exit(1)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:       logg,
		DB:           dbClient,
		Repository:   outboxRepo,
		Retention:    cfg.Events.Retention,
		AttemptLimit: cfg.Events.MaxAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker"), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(relayJob, retentionJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
