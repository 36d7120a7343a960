// Package main provides the standalone sweep worker entry point. It runs the
// batch dispatcher, scheduled-call runner, and stuck-screening reconciler
// without the HTTP surface, for deployments that split the API from the
// background loops.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/screening-orchestrator/internal/config"
	"github.com/screening-orchestrator/internal/logging"
	"github.com/screening-orchestrator/internal/provider"
	"github.com/screening-orchestrator/internal/retry"
	"github.com/screening-orchestrator/internal/screening"
	"github.com/screening-orchestrator/internal/storage"
)

const progressCacheTTL = 30 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger().WithField("process", "sweep_worker")

	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer clickhouse.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	providerClient, err := provider.NewClient(&provider.ClientConfig{
		BaseURL:           cfg.Provider.BaseURL,
		APIKey:            cfg.Provider.APIKey,
		RequestTimeout:    cfg.Provider.RequestTimeout,
		RequestsPerSecond: cfg.Provider.RequestsPerSecond,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create provider client")
	}

	engine := screening.NewEngine(
		screening.EngineDeps{
			Screenings: storage.NewScreeningRepository(postgres),
			BulkOps:    storage.NewBulkOperationRepository(postgres),
			Calls:      storage.NewScheduledCallRepository(postgres),
			Directory:  storage.NewDirectoryRepository(postgres),
			Provider:   providerClient,
			Events:     storage.NewCallEventRepository(clickhouse),
			Progress:   storage.NewProgressCache(redis, progressCacheTTL),
		},
		screening.EngineConfig{
			Dispatcher: screening.DispatcherConfig{
				BatchSize:   cfg.Dispatch.DefaultBatchSize,
				PacingDelay: cfg.Dispatch.PacingDelay,
				ChunkDelay:  cfg.Dispatch.ChunkDelay,
			},
			Runner: screening.RunnerConfig{
				Interval: cfg.Sweep.ScheduledInterval,
				PageSize: cfg.Sweep.ScheduledPageSize,
				Policy: retry.Policy{
					MaxRetries: cfg.Sweep.MaxRetries,
					BaseDelay:  cfg.Sweep.RetryBaseDelay,
					Multiplier: 2.0,
				},
			},
			Reconciler: screening.ReconcilerConfig{
				Interval:           cfg.Sweep.ReconcileInterval,
				StalenessThreshold: cfg.Sweep.StalenessThreshold,
				PageSize:           cfg.Sweep.ReconcilePageSize,
			},
		},
		logging.GetGlobalLogger(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down worker...")
		cancel()
	}()

	logger.Info("Sweep worker started")
	engine.Start(ctx)
	logger.Info("Worker exited")
}
