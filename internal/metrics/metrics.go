// Package metrics defines the Prometheus collectors exported by the API and
// the ingestion pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	IngestRunsTotal     *prometheus.CounterVec
	IngestItemsTotal    *prometheus.CounterVec
	IngestDuration      prometheus.Histogram
	ManifestCacheTotal  *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_http_requests_total",
				Help: "Total number of HTTP requests by method, route, and status.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storefront_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "route"},
		),
		IngestRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_ingest_runs_total",
				Help: "Bulk ingestion runs by outcome (success, error).",
			},
			[]string{"status"},
		),
		IngestItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_ingest_items_total",
				Help: "Ingested items by source (feed, sitemap) and result (added, updated, unchanged, error).",
			},
			[]string{"source", "status"},
		),
		IngestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "storefront_ingest_duration_seconds",
				Help:    "Wall time of a bulk ingestion run.",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
		),
		ManifestCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_manifest_cache_total",
				Help: "Manifest cache lookups by result (hit, miss).",
			},
			[]string{"result"},
		),
		gatherer: reg,
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.IngestRunsTotal,
		m.IngestItemsTotal,
		m.IngestDuration,
		m.ManifestCacheTotal,
	)

	return m
}

// NewUnregistered returns collectors bound to a private registry.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler returns the scrape handler for the registry the metrics live in.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
