package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Product struct {
	ID           string     `json:"id" gorm:"type:uuid;primaryKey"`
	SiteID       string     `json:"site_id" gorm:"type:uuid;not null;index"`
	Title        string     `json:"title" gorm:"not null"`
	Price        float64    `json:"price" gorm:"type:decimal(10,2);not null"`
	ImageURL     *string    `json:"image_url"`
	BuyURL       string     `json:"buy_url" gorm:"not null;default:''"`
	Description  *string    `json:"description"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// ProductInput is the canonical record every source shape is normalized
// into before it reaches the upsert service.
type ProductInput struct {
	Title       string `json:"title"`
	Price       Price  `json:"price"`
	ImageURL    string `json:"image_url,omitempty"`
	BuyURL      string `json:"buy_url,omitempty"`
	Description string `json:"description,omitempty"`
}

// ManifestProduct is the shape AI agents read from a site manifest.
type ManifestProduct struct {
	Title       string  `json:"title"`
	Price       float64 `json:"price"`
	Description *string `json:"description"`
	ImageURL    *string `json:"image_url"`
	BuyURL      string  `json:"buy_url"`
}

func (p *Product) Manifest() ManifestProduct {
	return ManifestProduct{
		Title:       p.Title,
		Price:       p.Price,
		Description: p.Description,
		ImageURL:    p.ImageURL,
		BuyURL:      p.BuyURL,
	}
}
