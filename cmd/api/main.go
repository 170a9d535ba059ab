package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cobrehq/cbmm-accounts/api/routes"
	"github.com/cobrehq/cbmm-accounts/internal/accounts"
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

	registry := prometheus.NewRegistry()
	observers := metrics.NewProcessingMetrics(registry)

	accountsRepo := accounts.NewRepository(dbClient.DB())
	transactionsRepo := transactions.NewRepository(dbClient.DB())
	eventsRepo := events.NewRepository(dbClient.DB())

	accountsService, err := accounts.NewService(accountsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create accounts service", err)
		os.Exit(1)
	}

	transactionsService, err := transactions.NewService(transactionsRepo, accountsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create transactions service", err)
		os.Exit(1)
	}

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

	engine, err := ledger.NewEngine(accountsRepo, transactionsRepo, locks, dbClient, cfg.Retry, logg, observers)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger engine", err)
		os.Exit(1)
	}

	orchestrator, err := events.NewOrchestrator(guard, eventsRepo, engine, cfg.Event, logg, observers)
	if err != nil {
		logg.Error(context.Background(), "failed to create event orchestrator", err)
		os.Exit(1)
	}

	batch, err := events.NewBatchProcessor(orchestrator, cfg.Batch, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create batch processor", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:       cfg,
			Logger:       logg,
			DB:           dbClient,
			Redis:        redisClient,
			Accounts:     accountsService,
			Transactions: transactionsService,
			Processor:    orchestrator,
			Batch:        batch,
			Metrics:      registry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
