// Package events records usage and sync events. Callers on the product
// and ingestion paths emit through an Emitter, which never reports
// failures back: they are logged on the emitter's own error path.
package events

import (
	"context"
	"time"

	"storefront/internal/logger"
	"storefront/internal/models"
)

// Emitter publishes a best-effort side-effect event.
type Emitter interface {
	Emit(ctx context.Context, siteID string, eventType models.EventType, payload any)
}

// emitTimeout bounds how long a caller can be held up by event recording.
const emitTimeout = 5 * time.Second

// DirectEmitter writes events straight to the database through a Recorder.
type DirectEmitter struct {
	recorder *Recorder
	logger   *logger.Logger
}

func NewDirectEmitter(recorder *Recorder, logger *logger.Logger) *DirectEmitter {
	return &DirectEmitter{recorder: recorder, logger: logger}
}

func (e *DirectEmitter) Emit(ctx context.Context, siteID string, eventType models.EventType, payload any) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
	defer cancel()

	if _, err := e.recorder.Record(ctx, siteID, string(eventType), payload); err != nil {
		e.logger.Warn("Failed to record %s event for site %s: %v", eventType, siteID, err)
	}
}

// NopEmitter drops every event.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, string, models.EventType, any) {}
