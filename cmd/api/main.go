package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/packfinderz-order-progress/api/routes"
	"github.com/angelmondragon/packfinderz-order-progress/internal/cancellation"
	"github.com/angelmondragon/packfinderz-order-progress/internal/cron"
	"github.com/angelmondragon/packfinderz-order-progress/internal/orders"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/config"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/db"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/instance"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/logger"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/metrics"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/migrate"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/outbox"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/pubsub"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

type eventPublisher interface {
	Publish(ctx context.Context, channel string, message any) (int64, error)
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	cancellationChannel := cfg.Events.ChannelPrefix + ":cancellations"
	var publisher eventPublisher = redisClient
	if cfg.Events.UsesPubSub() {
		pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, logg, cancellationChannel)
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

	registerer := prometheus.DefaultRegisterer
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:        orders.NewRepository(dbClient.DB()),
		Tx:          dbClient,
		Outbox:      outboxService,
		Cache:       redisClient,
		CacheTTL:    cfg.Cache.SnapshotTTL,
		Logger:      logg,
		CacheMetric: metrics.NewSnapshotCacheMetrics(registerer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	coordinator, err := cancellation.NewCoordinator(cancellation.Params{
		Committer: orderService,
		Notifier: cancellation.Notifiers{
			cancellation.LogNotifier{Logger: logg},
			cancellation.PublishNotifier{
				Publisher: publisher,
				Channel:   cancellationChannel,
				Logger:    logg,
			},
		},
		Logger:        logg,
		Metrics:       metrics.NewCancellationMetrics(registerer),
		GraceWindow:   cfg.Cancellation.GraceWindow,
		CommitTimeout: cfg.Cancellation.CommitTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cancellation coordinator", err)
		os.Exit(1)
	}

	id := instance.GetID()
	// Tickets live in this process, so the retention lock is per instance.
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron:"+id), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}
	retentionJob, err := cron.NewCancellationRetentionJob(cron.CancellationRetentionJobParams{
		Logger:    logg,
		Pruner:    coordinator,
		Retention: cfg.Cancellation.TicketRetention,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ticket retention job", err)
		os.Exit(1)
	}
	cronService, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(retentionJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(registerer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:        cfg,
			Logger:        logg,
			DB:            dbClient,
			Redis:         redisClient,
			Orders:        orderService,
			Cancellations: coordinator,
			HTTPMetrics:   metrics.NewHTTPMetrics(registerer),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logg.Info(ctx, "starting api server")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		if err := cronService.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		serverErr := server.Shutdown(shutdownCtx)
		return multierr.Combine(serverErr, coordinator.Close(shutdownCtx))
	})

	if err := group.Wait(); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}
