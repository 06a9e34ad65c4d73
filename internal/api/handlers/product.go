package handlers

import (
	"context"
	"net/http"
	"strings"

	"storefront/internal/logger"
	"storefront/internal/models"
	"storefront/internal/services/catalog"
	"storefront/internal/services/extractor"

	"github.com/gin-gonic/gin"
)

type ProductUpserter interface {
	AddProduct(ctx context.Context, siteID string, in models.ProductInput) catalog.Outcome
}

type PageFetcher interface {
	FetchHTML(ctx context.Context, url string) ([]byte, error)
}

type ProductHandler struct {
	catalog ProductUpserter
	pages   PageFetcher
	logger  *logger.Logger
}

func NewProductHandler(catalog ProductUpserter, pages PageFetcher, logger *logger.Logger) *ProductHandler {
	return &ProductHandler{
		catalog: catalog,
		pages:   pages,
		logger:  logger,
	}
}

type addProductRequest struct {
	SiteID string `json:"site_id"`
	models.ProductInput
}

// Add handles POST /api/products/add.
func (h *ProductHandler) Add(c *gin.Context) {
	var req addProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	if strings.TrimSpace(req.SiteID) == "" || strings.TrimSpace(req.Title) == "" || req.Price.IsEmpty() {
		badRequest(c, "Missing required fields")
		return
	}

	h.respondOutcome(c, h.catalog.AddProduct(c.Request.Context(), req.SiteID, req.ProductInput))
}

type extractRequest struct {
	SiteID  string `json:"site_id"`
	PageURL string `json:"page_url"`
}

// Extract handles POST /api/products/extract: fetch a product page, read
// its fields from the markup and upsert the result.
func (h *ProductHandler) Extract(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if req.SiteID == "" || req.PageURL == "" {
		badRequest(c, "Missing required fields: site_id and page_url are required")
		return
	}

	body, err := h.pages.FetchHTML(c.Request.Context(), req.PageURL)
	if err != nil {
		h.logger.Warn("Failed to fetch product page %s: %v", req.PageURL, err)
		respondError(c, err)
		return
	}

	in, err := extractor.Extract(req.PageURL, body)
	if err != nil {
		respondError(c, err)
		return
	}

	if in.Title == "" || in.Price.IsEmpty() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":     "Could not extract required fields (title or price)",
			"extracted": in,
		})
		return
	}

	h.respondOutcome(c, h.catalog.AddProduct(c.Request.Context(), req.SiteID, in))
}

func (h *ProductHandler) respondOutcome(c *gin.Context, out catalog.Outcome) {
	switch out.Status {
	case catalog.StatusAdded:
		c.JSON(http.StatusOK, gin.H{"message": "Product added", "product": out.Product})
	case catalog.StatusUpdated:
		c.JSON(http.StatusOK, gin.H{"message": "Product updated", "product": out.Product, "changes": out.Changes})
	case catalog.StatusUnchanged:
		c.JSON(http.StatusOK, gin.H{"message": "Product already exists", "product_id": out.Product.ID})
	default:
		respondError(c, out.Err)
	}
}
