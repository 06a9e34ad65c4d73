package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"storefront/internal/apperrors"
	"storefront/internal/logger"
	"storefront/internal/models"

	"gorm.io/datatypes"
)

// Store is the slice of the data service the recorder needs.
type Store interface {
	FindSiteByID(ctx context.Context, id string) (*models.Site, error)
	CreateEvent(ctx context.Context, event *models.SyncEvent) error
	TouchSite(ctx context.Context, id string, at time.Time) error
}

// Recorder validates and persists sync events.
type Recorder struct {
	store  Store
	logger *logger.Logger
	now    func() time.Time
}

func NewRecorder(store Store, logger *logger.Logger) *Recorder {
	return &Recorder{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Record appends an event for an existing site and marks the site as
// recently synced. The site timestamp update is best-effort.
func (r *Recorder) Record(ctx context.Context, siteID, eventType string, payload any) (*models.SyncEvent, error) {
	siteID = strings.TrimSpace(siteID)
	eventType = strings.TrimSpace(eventType)
	if siteID == "" || eventType == "" {
		return nil, apperrors.Validation("Missing required fields: site_id and event_type are required")
	}

	if _, err := r.store.FindSiteByID(ctx, siteID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("Invalid site_id: site does not exist")
		}
		return nil, apperrors.Newf(apperrors.ErrStorage, http.StatusInternalServerError, "Error validating site: %v", err)
	}

	body, err := encodePayload(payload)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrValidation, http.StatusBadRequest, "Invalid payload: %v", err)
	}

	event := &models.SyncEvent{
		SiteID:    siteID,
		EventType: eventType,
		Payload:   body,
	}
	if err := r.store.CreateEvent(ctx, event); err != nil {
		return nil, apperrors.Newf(apperrors.ErrStorage, http.StatusInternalServerError, "Failed to record event: %v", err)
	}

	if err := r.store.TouchSite(ctx, siteID, r.now()); err != nil {
		r.logger.Warn("Failed to update site last_synced_at for %s: %v", siteID, err)
	}

	return event, nil
}

func encodePayload(payload any) (datatypes.JSON, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(p) == 0 || string(p) == "null" {
			return nil, nil
		}
		if !json.Valid(p) {
			return nil, errors.New("payload is not valid JSON")
		}
		return datatypes.JSON(p), nil
	default:
		body, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		return datatypes.JSON(body), nil
	}
}
