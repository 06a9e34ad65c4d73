package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"storefront/internal/cache"
	"storefront/internal/database"
	"storefront/internal/metrics"
	"storefront/internal/services/catalog"
	"storefront/internal/services/events"
	"storefront/internal/services/feed"
	"storefront/internal/services/ingest"
	"storefront/internal/store"

	"github.com/spf13/cobra"
)

func newSyncCommand() *cobra.Command {
	var req ingest.Request

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Ingest a product feed and/or sitemap into a site's catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			db, err := database.New(cfg.DatabaseURL, database.Options{LogLevel: cfg.LogLevel})
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()
			st := store.New(db.DB)

			var manifests cache.ManifestCache = cache.Noop{}
			if cfg.RedisURL != "" {
				rc, err := cache.NewRedis(cfg.RedisURL, cfg.ManifestCacheTTL)
				if err != nil {
					return err
				}
				defer rc.Close()
				manifests = rc
			}

			var emitter events.Emitter = events.NewDirectEmitter(events.NewRecorder(st, log), log)
			if brokers := cfg.Brokers(); len(brokers) > 0 {
				ke := events.NewKafkaEmitter(brokers, cfg.KafkaEventsTopic, log)
				defer ke.Close()
				emitter = ke
			}

			svc := catalog.NewService(st, emitter, manifests, log)
			fetcher := feed.New(&http.Client{Timeout: cfg.FetchTimeout}, log, cfg.IngestBatchWidth, cfg.IngestMaxItems)
			orchestrator := ingest.NewOrchestrator(fetcher, svc, st, emitter, metrics.NewUnregistered(), log, cfg.IngestBatchWidth)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := orchestrator.Run(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}

	cmd.Flags().StringVar(&req.SiteID, "site", "", "site id to ingest into (required)")
	cmd.Flags().StringVar(&req.FeedURL, "feed", "", "product feed URL")
	cmd.Flags().StringVar(&req.SitemapURL, "sitemap", "", "sitemap or sitemap index URL")
	_ = cmd.MarkFlagRequired("site")

	return cmd
}

func newParseFeedCommand() *cobra.Command {
	var sitemap bool

	cmd := &cobra.Command{
		Use:   "parse-feed <url>",
		Short: "Fetch a feed and print the normalized products without storing them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			fetcher := feed.New(&http.Client{Timeout: cfg.FetchTimeout}, log, cfg.IngestBatchWidth, cfg.IngestMaxItems)

			fetch := fetcher.FetchFeed
			if sitemap {
				fetch = fetcher.FetchSitemapProducts
			}
			products, err := fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(products) == 0 {
				return errors.New("no products found")
			}
			return printJSON(cmd, products)
		},
	}

	cmd.Flags().BoolVar(&sitemap, "sitemap", false, "treat the URL as a sitemap")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
