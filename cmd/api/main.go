package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/api"
	"storefront/internal/cache"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/logger"
	"storefront/internal/metrics"
	"storefront/internal/services/analytics"
	"storefront/internal/services/catalog"
	"storefront/internal/services/events"
	"storefront/internal/services/feed"
	"storefront/internal/services/ingest"
	"storefront/internal/services/manifest"
	"storefront/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
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

	// Initialize database
	db, err := database.New(cfg.DatabaseURL, database.Options{LogLevel: cfg.LogLevel})
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()
	st := store.New(db.DB)

	// Manifest cache
	var manifests cache.ManifestCache = cache.Noop{}
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(cfg.RedisURL, cfg.ManifestCacheTTL)
		if err != nil {
			logger.Fatal("Failed to connect to redis: %v", err)
		}
		defer rc.Close()
		manifests = rc
	} else {
		logger.Info("REDIS_URL not set, manifest cache disabled")
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Events
	recorder := events.NewRecorder(st, logger)
	var emitter events.Emitter = events.NewDirectEmitter(recorder, logger)
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		ke := events.NewKafkaEmitter(brokers, cfg.KafkaEventsTopic, logger)
		defer ke.Close()
		emitter = ke
	}

	// Services
	catalogSvc := catalog.NewService(st, emitter, manifests, logger)
	fetcher := feed.New(&http.Client{Timeout: cfg.FetchTimeout}, logger, cfg.IngestBatchWidth, cfg.IngestMaxItems)
	orchestrator := ingest.NewOrchestrator(fetcher, catalogSvc, st, emitter, m, logger, cfg.IngestBatchWidth)
	manifestSvc := manifest.NewService(st, manifests, m, logger, manifest.Options{
		StoreName:     cfg.StoreName,
		PublicBaseURL: cfg.PublicBaseURL,
		Development:   !cfg.IsProduction(),
	})

	// Initialize API server
	server := api.New(cfg, logger, api.Deps{
		Ingester:  orchestrator,
		Catalog:   catalogSvc,
		Pages:     fetcher,
		Recorder:  recorder,
		Reporter:  analytics.NewService(st),
		Manifests: manifestSvc,
		Metrics:   m,
		Ping:      db.Ping,
	})

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Error("Server forced to shutdown: %v", err)
	}
}
