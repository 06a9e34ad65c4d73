package handlers

import (
	"context"
	"net/http"

	"storefront/internal/logger"
	"storefront/internal/services/ingest"

	"github.com/gin-gonic/gin"
)

type Ingester interface {
	Run(ctx context.Context, req ingest.Request) (*ingest.Result, error)
}

type SyncHandler struct {
	ingester Ingester
	logger   *logger.Logger
}

func NewSyncHandler(ingester Ingester, logger *logger.Logger) *SyncHandler {
	return &SyncHandler{ingester: ingester, logger: logger}
}

// BulkSync handles POST /api/bulk-sync. The run is detached from the
// request: a client that hangs up does not stop an ingestion halfway.
func (h *SyncHandler) BulkSync(c *gin.Context) {
	var req ingest.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.ingester.Run(context.WithoutCancel(c.Request.Context()), req)
	if err != nil {
		h.logger.Error("Error in bulk sync for site %s: %v", req.SiteID, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
