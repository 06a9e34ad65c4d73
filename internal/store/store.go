// Package store is the relational data service behind the API: sites,
// products and sync events, persisted through gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/apperrors"
	"storefront/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func notFound(what, key string) error {
	return fmt.Errorf("%s %q: %w", what, key, apperrors.ErrNotFound)
}

// validID reports whether id can match a uuid primary key. Postgres rejects
// malformed uuids in a query instead of matching nothing.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// FindSiteByID returns the site or an error wrapping apperrors.ErrNotFound.
// A malformed id is reported as not found.
func (s *Store) FindSiteByID(ctx context.Context, id string) (*models.Site, error) {
	if !validID(id) {
		return nil, notFound("site", id)
	}

	var site models.Site
	err := s.db.WithContext(ctx).First(&site, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("site", id)
	}
	if err != nil {
		return nil, apperrors.Storage("select site", err)
	}
	return &site, nil
}

func (s *Store) FindSiteByDomain(ctx context.Context, domain string) (*models.Site, error) {
	var site models.Site
	err := s.db.WithContext(ctx).First(&site, "domain = ?", domain).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("site", domain)
	}
	if err != nil {
		return nil, apperrors.Storage("select site by domain", err)
	}
	return &site, nil
}

func (s *Store) CreateSite(ctx context.Context, site *models.Site) error {
	if err := s.db.WithContext(ctx).Create(site).Error; err != nil {
		return apperrors.Storage("insert site", err)
	}
	return nil
}

// TouchSite sets the site's last-synced timestamp.
func (s *Store) TouchSite(ctx context.Context, id string, at time.Time) error {
	err := s.db.WithContext(ctx).
		Model(&models.Site{}).
		Where("id = ?", id).
		Update("last_synced_at", at).Error
	if err != nil {
		return apperrors.Storage("update site last_synced_at", err)
	}
	return nil
}

// FindProductByBuyURL looks a product up by its dedup key.
func (s *Store) FindProductByBuyURL(ctx context.Context, siteID, buyURL string) (*models.Product, error) {
	var product models.Product
	err := s.db.WithContext(ctx).
		Where("site_id = ? AND buy_url = ?", siteID, buyURL).
		First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("product", buyURL)
	}
	if err != nil {
		return nil, apperrors.Storage("select product", err)
	}
	return &product, nil
}

// FindProductByTitle is the fallback identity for products that carry no
// buy URL.
func (s *Store) FindProductByTitle(ctx context.Context, siteID, title string) (*models.Product, error) {
	var product models.Product
	err := s.db.WithContext(ctx).
		Where("site_id = ? AND buy_url = '' AND title = ?", siteID, title).
		Order("created_at ASC").
		First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("product", title)
	}
	if err != nil {
		return nil, apperrors.Storage("select product by title", err)
	}
	return &product, nil
}

func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	if err := s.db.WithContext(ctx).Create(product).Error; err != nil {
		return apperrors.Storage("insert product", err)
	}
	return nil
}

// UpdateProduct applies the column updates and returns the stored row.
func (s *Store) UpdateProduct(ctx context.Context, id string, updates map[string]any) (*models.Product, error) {
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.Product{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, apperrors.Storage("update product", err)
	}

	var product models.Product
	if err := db.First(&product, "id = ?", id).Error; err != nil {
		return nil, apperrors.Storage("reload product", err)
	}
	return &product, nil
}

func (s *Store) TouchProduct(ctx context.Context, id string, at time.Time) error {
	err := s.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Update("last_synced_at", at).Error
	if err != nil {
		return apperrors.Storage("update product last_synced_at", err)
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context, siteID string) ([]models.Product, error) {
	var products []models.Product
	if !validID(siteID) {
		return products, nil
	}
	err := s.db.WithContext(ctx).
		Where("site_id = ?", siteID).
		Order("created_at ASC").
		Find(&products).Error
	if err != nil {
		return nil, apperrors.Storage("list products", err)
	}
	return products, nil
}

func (s *Store) CountProducts(ctx context.Context, siteID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("site_id = ?", siteID).
		Count(&count).Error
	if err != nil {
		return 0, apperrors.Storage("count products", err)
	}
	return count, nil
}

func (s *Store) CreateEvent(ctx context.Context, event *models.SyncEvent) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return apperrors.Storage("insert sync event", err)
	}
	return nil
}

// ListEvents returns a site's events of one type created at or after
// since, oldest first. A zero since disables the time filter.
func (s *Store) ListEvents(ctx context.Context, siteID string, eventType models.EventType, since time.Time) ([]models.SyncEvent, error) {
	query := s.db.WithContext(ctx).Where("site_id = ? AND event_type = ?", siteID, string(eventType))
	if !since.IsZero() {
		query = query.Where("created_at >= ?", since)
	}

	var events []models.SyncEvent
	if err := query.Order("created_at ASC").Find(&events).Error; err != nil {
		return nil, apperrors.Storage("list sync events", err)
	}
	return events, nil
}

// LatestEvent returns the newest matching event, or nil when there is none.
func (s *Store) LatestEvent(ctx context.Context, siteID string, eventType models.EventType, since time.Time) (*models.SyncEvent, error) {
	query := s.db.WithContext(ctx).Where("site_id = ? AND event_type = ?", siteID, string(eventType))
	if !since.IsZero() {
		query = query.Where("created_at >= ?", since)
	}

	var events []models.SyncEvent
	if err := query.Order("created_at DESC").Limit(1).Find(&events).Error; err != nil {
		return nil, apperrors.Storage("select latest sync event", err)
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}
