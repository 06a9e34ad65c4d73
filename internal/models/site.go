package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Site struct {
	ID           string     `json:"id" gorm:"type:uuid;primaryKey"`
	Domain       string     `json:"domain" gorm:"uniqueIndex;not null"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (s *Site) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// SyncEvent is an append-only usage/analytics log entry.
type SyncEvent struct {
	ID        string         `json:"id" gorm:"type:uuid;primaryKey"`
	SiteID    string         `json:"site_id" gorm:"type:uuid;not null;index:idx_sync_events_lookup,priority:1"`
	EventType string         `json:"event_type" gorm:"not null;index:idx_sync_events_lookup,priority:2"`
	Payload   datatypes.JSON `json:"payload"`
	CreatedAt time.Time      `json:"created_at" gorm:"index:idx_sync_events_lookup,priority:3"`
}

func (e *SyncEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

type EventType string

const (
	EventManifestFetched  EventType = "manifest_fetched"
	EventSchemaMissing    EventType = "schema_missing"
	EventProductAdded     EventType = "product_added"
	EventProductUpdated   EventType = "product_updated"
	EventProductSynced    EventType = "product_synced"
	EventBulkSyncFinished EventType = "bulk_sync_finished"
)
