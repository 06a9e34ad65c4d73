// Package manifest serves the product manifest AI agents read for a site,
// and the agents.json pointer that lets them find it.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"

	"storefront/internal/apperrors"
	"storefront/internal/cache"
	"storefront/internal/logger"
	"storefront/internal/metrics"
	"storefront/internal/models"
)

// Manifest is the document served at /api/manifest/:siteId.
type Manifest struct {
	StoreName string                   `json:"store_name"`
	Products  []models.ManifestProduct `json:"products"`
}

// AgentsDocument is served at /.well-known/agents.json.
type AgentsDocument struct {
	ManifestURL string `json:"manifest_url"`
}

type Store interface {
	FindSiteByDomain(ctx context.Context, domain string) (*models.Site, error)
	ListProducts(ctx context.Context, siteID string) ([]models.Product, error)
}

type Options struct {
	StoreName     string
	PublicBaseURL string
	// Development makes agents.json point at PublicBaseURL instead of the
	// requesting host.
	Development bool
}

type Service struct {
	store   Store
	cache   cache.ManifestCache
	metrics *metrics.Metrics
	logger  *logger.Logger
	opts    Options
}

func NewService(store Store, c cache.ManifestCache, m *metrics.Metrics, logger *logger.Logger, opts Options) *Service {
	if c == nil {
		c = cache.Noop{}
	}
	return &Service{store: store, cache: c, metrics: m, logger: logger, opts: opts}
}

// Render returns the serialized manifest for a site, from cache when
// possible. Cache failures degrade to a database read.
func (s *Service) Render(ctx context.Context, siteID string) ([]byte, error) {
	siteID = strings.TrimSpace(siteID)
	if siteID == "" {
		return nil, apperrors.Validation("Missing site ID")
	}

	body, ok, err := s.cache.Get(ctx, siteID)
	if err != nil {
		s.logger.Warn("Manifest cache read failed for site %s: %v", siteID, err)
	}
	if ok {
		s.metrics.ManifestCacheTotal.WithLabelValues("hit").Inc()
		return body, nil
	}
	s.metrics.ManifestCacheTotal.WithLabelValues("miss").Inc()

	manifest, err := s.Build(ctx, siteID)
	if err != nil {
		return nil, err
	}

	body, err = json.Marshal(manifest)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, siteID, body); err != nil {
		s.logger.Warn("Manifest cache write failed for site %s: %v", siteID, err)
	}
	return body, nil
}

// Build assembles the manifest from the database.
func (s *Service) Build(ctx context.Context, siteID string) (*Manifest, error) {
	products, err := s.store.ListProducts(ctx, siteID)
	if err != nil {
		return nil, err
	}

	manifest := &Manifest{
		StoreName: s.opts.StoreName,
		Products:  make([]models.ManifestProduct, 0, len(products)),
	}
	for i := range products {
		manifest.Products = append(manifest.Products, products[i].Manifest())
	}
	return manifest, nil
}

// Agents resolves the manifest location for the site registered under the
// request host.
func (s *Service) Agents(ctx context.Context, host string) (*AgentsDocument, error) {
	domain := hostname(host)

	site, err := s.store.FindSiteByDomain(ctx, domain)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("Site not found for this domain.")
		}
		return nil, err
	}

	base := "https://" + domain
	if s.opts.Development {
		base = strings.TrimRight(s.opts.PublicBaseURL, "/")
	}
	return &AgentsDocument{ManifestURL: base + "/api/manifest/" + site.ID}, nil
}

func hostname(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
