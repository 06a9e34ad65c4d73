// Package catalog owns product identity: it decides whether an incoming
// record adds, updates or merely re-confirms a stored product.
package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"storefront/internal/apperrors"
	"storefront/internal/logger"
	"storefront/internal/models"
	"storefront/internal/services/events"
)

type Status string

const (
	StatusAdded     Status = "added"
	StatusUpdated   Status = "updated"
	StatusUnchanged Status = "unchanged"
	StatusError     Status = "error"
)

// Changes reports which identity-relevant fields an update touched.
type Changes struct {
	Title bool `json:"title"`
	Price bool `json:"price"`
}

// Outcome is the result of upserting one product. Err is set only when
// Status is StatusError.
type Outcome struct {
	Status  Status
	Product *models.Product
	Changes *Changes
	Err     error
}

func failed(err error) Outcome {
	return Outcome{Status: StatusError, Err: err}
}

type Store interface {
	FindSiteByID(ctx context.Context, id string) (*models.Site, error)
	FindSiteByDomain(ctx context.Context, domain string) (*models.Site, error)
	CreateSite(ctx context.Context, site *models.Site) error
	TouchSite(ctx context.Context, id string, at time.Time) error
	FindProductByBuyURL(ctx context.Context, siteID, buyURL string) (*models.Product, error)
	FindProductByTitle(ctx context.Context, siteID, title string) (*models.Product, error)
	CreateProduct(ctx context.Context, product *models.Product) error
	UpdateProduct(ctx context.Context, id string, updates map[string]any) (*models.Product, error)
	TouchProduct(ctx context.Context, id string, at time.Time) error
}

// CacheInvalidator drops cached manifests after catalog writes.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, siteID string) error
}

type Service struct {
	store   Store
	emitter events.Emitter
	cache   CacheInvalidator
	logger  *logger.Logger
	now     func() time.Time
}

func NewService(store Store, emitter events.Emitter, cache CacheInvalidator, logger *logger.Logger) *Service {
	return &Service{
		store:   store,
		emitter: emitter,
		cache:   cache,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// AddProduct upserts a product for a site that must already exist.
func (s *Service) AddProduct(ctx context.Context, siteID string, in models.ProductInput) Outcome {
	if _, err := s.store.FindSiteByID(ctx, siteID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return failed(apperrors.NotFound("Invalid site_id: Site not found"))
		}
		return failed(err)
	}
	return s.Upsert(ctx, siteID, in)
}

// Upsert inserts, updates or re-confirms one product. Products are keyed by
// (site, buy URL); records without a buy URL fall back to (site, title).
func (s *Service) Upsert(ctx context.Context, siteID string, in models.ProductInput) Outcome {
	title, price, err := validate(in)
	if err != nil {
		return failed(err)
	}
	in.Title = title
	in.BuyURL = strings.TrimSpace(in.BuyURL)

	existing, err := s.lookup(ctx, siteID, in)
	if err != nil {
		return failed(err)
	}

	var outcome Outcome
	if existing == nil {
		outcome = s.insert(ctx, siteID, in, price)
	} else {
		outcome = s.reconcile(ctx, existing, in, price)
	}
	if outcome.Status == StatusError {
		return outcome
	}

	now := s.now()
	if err := s.store.TouchSite(ctx, siteID, now); err != nil {
		s.logger.Warn("Failed to update last_synced_at for site %s: %v", siteID, err)
	}
	if err := s.cache.Invalidate(ctx, siteID); err != nil {
		s.logger.Warn("Failed to invalidate manifest cache for site %s: %v", siteID, err)
	}

	switch outcome.Status {
	case StatusAdded:
		s.emitter.Emit(ctx, siteID, models.EventProductAdded, outcome.Product)
	case StatusUpdated:
		s.emitter.Emit(ctx, siteID, models.EventProductUpdated, outcome.Product)
	case StatusUnchanged:
		s.emitter.Emit(ctx, siteID, models.EventProductSynced, map[string]any{
			"product_id": outcome.Product.ID,
			"title":      in.Title,
			"price":      price,
			"changed":    false,
		})
	}

	return outcome
}

func (s *Service) lookup(ctx context.Context, siteID string, in models.ProductInput) (*models.Product, error) {
	var (
		product *models.Product
		err     error
	)
	if in.BuyURL != "" {
		product, err = s.store.FindProductByBuyURL(ctx, siteID, in.BuyURL)
	} else {
		product, err = s.store.FindProductByTitle(ctx, siteID, in.Title)
	}
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	return product, err
}

func (s *Service) insert(ctx context.Context, siteID string, in models.ProductInput, price float64) Outcome {
	now := s.now()
	product := &models.Product{
		SiteID:       siteID,
		Title:        in.Title,
		Price:        price,
		ImageURL:     optional(in.ImageURL),
		BuyURL:       in.BuyURL,
		Description:  optional(in.Description),
		LastSyncedAt: &now,
	}

	if err := s.store.CreateProduct(ctx, product); err != nil {
		// Another item in the same chunk may have inserted this key first.
		if existing, lookupErr := s.lookup(ctx, siteID, in); lookupErr == nil && existing != nil {
			return s.reconcile(ctx, existing, in, price)
		}
		return failed(err)
	}

	return Outcome{Status: StatusAdded, Product: product}
}

func (s *Service) reconcile(ctx context.Context, existing *models.Product, in models.ProductInput, price float64) Outcome {
	now := s.now()
	changes := &Changes{
		Title: existing.Title != in.Title,
		Price: !models.SamePrice(existing.Price, price),
	}

	if !changes.Title && !changes.Price {
		if err := s.store.TouchProduct(ctx, existing.ID, now); err != nil {
			s.logger.Warn("Failed to update last_synced_at for product %s: %v", existing.ID, err)
		}
		existing.LastSyncedAt = &now
		return Outcome{Status: StatusUnchanged, Product: existing}
	}

	s.logger.Debug("Product %s changed: title %q -> %q, price %.2f -> %.2f",
		existing.ID, existing.Title, in.Title, existing.Price, price)

	updates := map[string]any{
		"title":          in.Title,
		"price":          price,
		"last_synced_at": now,
	}
	if in.ImageURL != "" {
		updates["image_url"] = in.ImageURL
	}
	if in.Description != "" {
		updates["description"] = in.Description
	}

	updated, err := s.store.UpdateProduct(ctx, existing.ID, updates)
	if err != nil {
		return failed(err)
	}

	return Outcome{Status: StatusUpdated, Product: updated, Changes: changes}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
