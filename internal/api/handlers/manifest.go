package handlers

import (
	"context"
	"net/http"

	"storefront/internal/services/manifest"

	"github.com/gin-gonic/gin"
)

type ManifestRenderer interface {
	Render(ctx context.Context, siteID string) ([]byte, error)
	Agents(ctx context.Context, host string) (*manifest.AgentsDocument, error)
}

type ManifestHandler struct {
	manifests ManifestRenderer
}

func NewManifestHandler(manifests ManifestRenderer) *ManifestHandler {
	return &ManifestHandler{manifests: manifests}
}

// Get handles GET /api/manifest/:siteId.
func (h *ManifestHandler) Get(c *gin.Context) {
	body, err := h.manifests.Render(c.Request.Context(), c.Param("siteId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// Agents handles GET /.well-known/agents.json.
func (h *ManifestHandler) Agents(c *gin.Context) {
	doc, err := h.manifests.Agents(c.Request.Context(), c.Request.Host)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}
