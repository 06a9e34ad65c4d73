package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"storefront/internal/models"

	"github.com/gin-gonic/gin"
)

type EventRecorder interface {
	Record(ctx context.Context, siteID, eventType string, payload any) (*models.SyncEvent, error)
}

type EventHandler struct {
	recorder EventRecorder
}

func NewEventHandler(recorder EventRecorder) *EventHandler {
	return &EventHandler{recorder: recorder}
}

type recordEventRequest struct {
	SiteID    string          `json:"site_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// Record handles POST /api/metrics/record.
func (h *EventHandler) Record(c *gin.Context) {
	var req recordEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	event, err := h.recorder.Record(c.Request.Context(), req.SiteID, req.EventType, req.Payload)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Event recorded", "event": event})
}
