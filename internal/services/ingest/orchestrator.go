// Package ingest runs a bulk sync for one site: fetch a feed and/or a
// sitemap, normalize the products and upsert them in concurrent chunks.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/apperrors"
	"storefront/internal/logger"
	"storefront/internal/metrics"
	"storefront/internal/models"
	"storefront/internal/services/batch"
	"storefront/internal/services/catalog"
	"storefront/internal/services/events"
)

// Request names the site to sync and at least one source.
type Request struct {
	SiteID     string `json:"site_id"`
	FeedURL    string `json:"feed_url,omitempty"`
	SitemapURL string `json:"sitemap_url,omitempty"`
}

// Result is the tally returned for a completed run.
type Result struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Errors    int `json:"errors"`
	Total     int `json:"total"`
}

func (r *Result) add(o Result) {
	r.Inserted += o.Inserted
	r.Updated += o.Updated
	r.Unchanged += o.Unchanged
	r.Errors += o.Errors
	r.Total = r.Inserted + r.Updated + r.Unchanged + r.Errors
}

// Source fetches and normalizes remote product listings.
type Source interface {
	FetchFeed(ctx context.Context, url string) ([]models.ProductInput, error)
	FetchSitemapProducts(ctx context.Context, url string) ([]models.ProductInput, error)
}

// Upserter writes one product.
type Upserter interface {
	Upsert(ctx context.Context, siteID string, in models.ProductInput) catalog.Outcome
}

// SiteStore is the site lookup and timestamp update the run needs.
type SiteStore interface {
	FindSiteByID(ctx context.Context, id string) (*models.Site, error)
	TouchSite(ctx context.Context, id string, at time.Time) error
}

type Orchestrator struct {
	source   Source
	upserter Upserter
	sites    SiteStore
	emitter  events.Emitter
	metrics  *metrics.Metrics
	logger   *logger.Logger
	width    int
}

func NewOrchestrator(
	source Source,
	upserter Upserter,
	sites SiteStore,
	emitter events.Emitter,
	m *metrics.Metrics,
	logger *logger.Logger,
	width int,
) *Orchestrator {
	if width <= 0 {
		width = batch.DefaultWidth
	}
	return &Orchestrator{
		source:   source,
		upserter: upserter,
		sites:    sites,
		emitter:  emitter,
		metrics:  m,
		logger:   logger,
		width:    width,
	}
}

// Run executes a bulk sync. Per-item failures are counted in the result;
// a failure to fetch or parse either source fails the whole run.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	req.SiteID = strings.TrimSpace(req.SiteID)
	req.FeedURL = strings.TrimSpace(req.FeedURL)
	req.SitemapURL = strings.TrimSpace(req.SitemapURL)

	if req.SiteID == "" {
		return nil, apperrors.Validation("Missing site_id")
	}
	if req.FeedURL == "" && req.SitemapURL == "" {
		return nil, apperrors.Validation("Either feed_url or sitemap_url is required")
	}

	if _, err := o.sites.FindSiteByID(ctx, req.SiteID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("Invalid site_id: Site not found")
		}
		return nil, err
	}

	startTime := time.Now()
	log := o.logger.With("site_id", req.SiteID)
	result := &Result{}

	if req.FeedURL != "" {
		tally, err := o.runSource(ctx, log, req.SiteID, "feed", req.FeedURL, o.source.FetchFeed)
		if err != nil {
			o.metrics.IngestRunsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		result.add(tally)
	}

	if req.SitemapURL != "" {
		tally, err := o.runSource(ctx, log, req.SiteID, "sitemap", req.SitemapURL, o.source.FetchSitemapProducts)
		if err != nil {
			o.metrics.IngestRunsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		result.add(tally)
	}

	o.emitter.Emit(ctx, req.SiteID, models.EventBulkSyncFinished, map[string]any{
		"inserted":    result.Inserted,
		"updated":     result.Updated,
		"unchanged":   result.Unchanged,
		"errors":      result.Errors,
		"total":       result.Total,
		"feed_url":    req.FeedURL != "",
		"sitemap_url": req.SitemapURL != "",
	})

	o.metrics.IngestRunsTotal.WithLabelValues("success").Inc()
	o.metrics.IngestDuration.Observe(time.Since(startTime).Seconds())

	if err := o.sites.TouchSite(ctx, req.SiteID, time.Now().UTC()); err != nil {
		log.Warn("Failed to update site last_synced_at: %v", err)
	}

	log.Info("Bulk sync finished: %d inserted, %d updated, %d unchanged, %d errors in %s",
		result.Inserted, result.Updated, result.Unchanged, result.Errors, time.Since(startTime))

	return result, nil
}

type fetchFunc func(ctx context.Context, url string) ([]models.ProductInput, error)

func (o *Orchestrator) runSource(ctx context.Context, log *logger.Logger, siteID, source, url string, fetch fetchFunc) (Result, error) {
	products, err := fetch(ctx, url)
	if err != nil {
		log.Error("Failed to process %s %s: %v", source, url, err)
		return Result{}, fmt.Errorf("processing %s: %w", source, err)
	}

	outcomes := batch.Run(ctx, log, products, o.width, func(ctx context.Context, in models.ProductInput) (catalog.Outcome, error) {
		return o.upserter.Upsert(ctx, siteID, in), nil
	})

	tally := Tally(outcomes, len(products))
	o.metrics.IngestItemsTotal.WithLabelValues(source, string(catalog.StatusAdded)).Add(float64(tally.Inserted))
	o.metrics.IngestItemsTotal.WithLabelValues(source, string(catalog.StatusUpdated)).Add(float64(tally.Updated))
	o.metrics.IngestItemsTotal.WithLabelValues(source, string(catalog.StatusUnchanged)).Add(float64(tally.Unchanged))
	o.metrics.IngestItemsTotal.WithLabelValues(source, string(catalog.StatusError)).Add(float64(tally.Errors))

	log.Info("Processed %s %s: %d products", source, url, len(products))
	return tally, nil
}

// Tally counts outcomes by status. Items that produced no outcome at all
// (submitted minus returned) are counted as errors.
func Tally(outcomes []catalog.Outcome, submitted int) Result {
	var r Result
	for _, out := range outcomes {
		switch out.Status {
		case catalog.StatusAdded:
			r.Inserted++
		case catalog.StatusUpdated:
			r.Updated++
		case catalog.StatusUnchanged:
			r.Unchanged++
		default:
			r.Errors++
		}
	}
	if missing := submitted - len(outcomes); missing > 0 {
		r.Errors += missing
	}
	r.Total = r.Inserted + r.Updated + r.Unchanged + r.Errors
	return r
}
