package middleware

import (
	"time"

	"storefront/internal/logger"

	"github.com/gin-gonic/gin"
)

// Logger writes one line per request through the service logger.
func Logger(logger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		line := "%s %s %d %s %s request_id=%s"
		args := []interface{}{
			c.Request.Method,
			path,
			status,
			time.Since(start),
			c.ClientIP(),
			c.GetString(RequestIDKey),
		}

		switch {
		case status >= 500:
			logger.Error(line, args...)
		case status >= 400:
			logger.Warn(line, args...)
		default:
			logger.Info(line, args...)
		}
	}
}
