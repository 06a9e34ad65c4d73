package handlers

import (
	"net/http"

	"storefront/internal/apperrors"

	"github.com/gin-gonic/gin"
)

// respondError maps err onto a status code. Server-side failures carry the
// underlying message behind a fixed prefix.
func respondError(c *gin.Context, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": "Internal server error: " + err.Error()})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}
