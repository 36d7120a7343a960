// Package main provides the API server entry point for the screening
// orchestration service.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/screening-orchestrator/internal/api"
	"github.com/screening-orchestrator/internal/config"
	"github.com/screening-orchestrator/internal/logging"
	"github.com/screening-orchestrator/internal/provider"
	"github.com/screening-orchestrator/internal/retry"
	"github.com/screening-orchestrator/internal/screening"
	"github.com/screening-orchestrator/internal/storage"
)

const progressCacheTTL = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Initialize database connections
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

	// Initialize the voice provider client
	providerClient, err := provider.NewClient(&provider.ClientConfig{
		BaseURL:           cfg.Provider.BaseURL,
		APIKey:            cfg.Provider.APIKey,
		RequestTimeout:    cfg.Provider.RequestTimeout,
		RequestsPerSecond: cfg.Provider.RequestsPerSecond,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create provider client")
	}

	// Initialize repositories
	screeningRepo := storage.NewScreeningRepository(postgres)
	bulkOpRepo := storage.NewBulkOperationRepository(postgres)
	scheduledCallRepo := storage.NewScheduledCallRepository(postgres)
	directoryRepo := storage.NewDirectoryRepository(postgres)
	eventRepo := storage.NewCallEventRepository(clickhouse)
	progressCache := storage.NewProgressCache(redis, progressCacheTTL)

	// Wire the orchestration engine
	engine := screening.NewEngine(
		screening.EngineDeps{
			Screenings: screeningRepo,
			BulkOps:    bulkOpRepo,
			Calls:      scheduledCallRepo,
			Directory:  directoryRepo,
			Provider:   providerClient,
			Events:     eventRepo,
			Progress:   progressCache,
		},
		engineConfig(cfg),
		logger,
	)

	// Background loops: batch dispatcher, scheduled-call runner, and the
	// stuck-screening reconciler
	engineCtx, stopEngine := context.WithCancel(context.Background())
	defer stopEngine()
	go engine.Start(engineCtx)

	logger.Info("Orchestration engine started")

	// Create server configuration
	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RequestsPerSec:  10,
	}

	server := api.NewServer(
		serverConfig,
		engine.Controller,
		engine.Ingester,
		engine.Runner,
		engine.Reconciler,
		logger,
	)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop the background loops before draining HTTP connections so no new
	// dispatches start mid-shutdown
	stopEngine()

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

// engineConfig maps the environment configuration onto the engine's
// per-component tuning
func engineConfig(cfg *config.Config) screening.EngineConfig {
	return screening.EngineConfig{
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
	}
}
