// Package processors turns messages from the events topic into stored
// sync events.
package processors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"storefront/internal/apperrors"
	"storefront/internal/cache"
	"storefront/internal/logger"
	"storefront/internal/models"
	"storefront/internal/services/events"
)

// ErrRejected marks a message that can never be stored, such as one for an
// unknown site. Retrying it is pointless.
var ErrRejected = errors.New("event rejected")

type Recorder interface {
	Record(ctx context.Context, siteID, eventType string, payload any) (*models.SyncEvent, error)
}

type EventProcessor struct {
	recorder Recorder
	cache    cache.ManifestCache
	logger   *logger.Logger
}

func NewEventProcessor(recorder Recorder, manifests cache.ManifestCache, logger *logger.Logger) *EventProcessor {
	if manifests == nil {
		manifests = cache.Noop{}
	}
	return &EventProcessor{
		recorder: recorder,
		cache:    manifests,
		logger:   logger,
	}
}

func (ep *EventProcessor) Process(ctx context.Context, msg events.Message) error {
	event, err := ep.recorder.Record(ctx, msg.SiteID, msg.EventType, msg.Payload)
	if err != nil {
		if status := apperrors.HTTPStatusCode(err); status >= http.StatusBadRequest && status < http.StatusInternalServerError {
			return fmt.Errorf("%w: %v", ErrRejected, err)
		}
		return err
	}

	switch models.EventType(msg.EventType) {
	case models.EventProductAdded, models.EventProductUpdated, models.EventBulkSyncFinished:
		// Catalog writes made by another process still leave a stale
		// manifest in a shared cache.
		if err := ep.cache.Invalidate(ctx, msg.SiteID); err != nil {
			ep.logger.Warn("Failed to invalidate manifest cache for site %s: %v", msg.SiteID, err)
		}
	}

	ep.logger.Debug("Stored %s event %s for site %s", event.EventType, event.ID, event.SiteID)
	return nil
}
