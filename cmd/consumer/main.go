package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cobrehq/cbmm-accounts/internal/accounts"
	"github.com/cobrehq/cbmm-accounts/internal/consumers/cbmm"
	"github.com/cobrehq/cbmm-accounts/internal/events"
	"github.com/cobrehq/cbmm-accounts/internal/idempotency"
	"github.com/cobrehq/cbmm-accounts/internal/ledger"
	"github.com/cobrehq/cbmm-accounts/internal/lock"
	"github.com/cobrehq/cbmm-accounts/internal/transactions"
	"github.com/cobrehq/cbmm-accounts/pkg/config"
	"github.com/cobrehq/cbmm-accounts/pkg/db"
	"github.com/cobrehq/cbmm-accounts/pkg/logger"
	"github.com/cobrehq/cbmm-accounts/pkg/metrics"
	"github.com/cobrehq/cbmm-accounts/pkg/migrate"
	"github.com/cobrehq/cbmm-accounts/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "consumer"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "consumer",
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

	observers := metrics.NewProcessingMetrics(prometheus.NewRegistry())

	guard, err := idempotency.NewGuard(redisClient, cfg.Idempotency.TTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency guard", err)
		os.Exit(1)
	}

	locks, err := lock.NewManager(redisClient, cfg.Lock, logg, observers)
	if err != nil {
		logg.Error(context.Background(), "failed to create lock manager", err)
		os.Exit(1)
	}

	engine, err := ledger.NewEngine(
		accounts.NewRepository(dbClient.DB()),
		transactions.NewRepository(dbClient.DB()),
		locks,
		dbClient,
		cfg.Retry,
		logg,
		observers,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger engine", err)
		os.Exit(1)
	}

	orchestrator, err := events.NewOrchestrator(guard, events.NewRepository(dbClient.DB()), engine, cfg.Event, logg, observers)
	if err != nil {
		logg.Error(context.Background(), "failed to create event orchestrator", err)
		os.Exit(1)
	}

	consumer, err := cbmm.NewConsumer(cfg.Kafka, orchestrator, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create kafka consumer", err)
		os.Exit(1)
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			logg.Error(context.Background(), "error closing kafka consumer", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":   cfg.App.Env,
		"topic": cfg.Kafka.Topic,
		"group": cfg.Kafka.GroupID,
	})
	logg.Info(ctx, "starting event consumer")

	if err := consumer.Run(ctx); err != nil {
		logg.Error(ctx, "event consumer stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "event consumer shut down gracefully")
}
