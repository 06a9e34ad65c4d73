package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"storefront/internal/cache"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/logger"
	"storefront/internal/services/events"
	"storefront/internal/store"
	"storefront/internal/worker"
	"storefront/internal/worker/processors"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel)
	defer logger.Sync()

	if len(cfg.Brokers()) == 0 {
		logger.Fatal("KAFKA_BROKERS is required for the worker")
	}

	db, err := database.New(cfg.DatabaseURL, database.Options{LogLevel: cfg.LogLevel})
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	var manifests cache.ManifestCache = cache.Noop{}
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(cfg.RedisURL, cfg.ManifestCacheTTL)
		if err != nil {
			logger.Fatal("Failed to connect to redis: %v", err)
		}
		defer rc.Close()
		manifests = rc
	}

	recorder := events.NewRecorder(store.New(db.DB), logger)
	w := worker.New(cfg, logger, processors.NewEventProcessor(recorder, manifests, logger))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting worker...")
	if err := w.Start(ctx); err != nil {
		logger.Error("Worker exited: %v", err)
	}

	if err := w.Stop(); err != nil {
		logger.Error("Failed to close reader: %v", err)
	}
}
