package handlers

import (
	"context"
	"net/http"

	"storefront/internal/models"
	"storefront/internal/services/analytics"

	"github.com/gin-gonic/gin"
)

type SiteRegistrar interface {
	RegisterSite(ctx context.Context, domain string) (*models.Site, error)
}

type SiteReporter interface {
	SiteStatus(ctx context.Context, siteID string) (*analytics.SiteStatus, error)
	Summary(ctx context.Context, siteID, timeRange string) (*analytics.Summary, error)
}

type SiteHandler struct {
	registrar SiteRegistrar
	reporter  SiteReporter
}

func NewSiteHandler(registrar SiteRegistrar, reporter SiteReporter) *SiteHandler {
	return &SiteHandler{registrar: registrar, reporter: reporter}
}

// Register handles POST /api/register-site.
func (h *SiteHandler) Register(c *gin.Context) {
	var req struct {
		Domain string `json:"domain"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	site, err := h.registrar.RegisterSite(c.Request.Context(), req.Domain)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"site_id": site.ID})
}

// Status handles GET /api/site-status/:siteId.
func (h *SiteHandler) Status(c *gin.Context) {
	status, err := h.reporter.SiteStatus(c.Request.Context(), c.Param("siteId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Analytics handles GET /api/analytics/:siteId?timeRange=7days|30days|90days.
func (h *SiteHandler) Analytics(c *gin.Context) {
	summary, err := h.reporter.Summary(c.Request.Context(), c.Param("siteId"), c.Query("timeRange"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
