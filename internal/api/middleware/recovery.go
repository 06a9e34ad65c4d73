package middleware

import (
	"net"
	"net/http"
	"net/http/httputil"
	"os"
	"runtime/debug"
	"strings"

	"storefront/internal/logger"

	"github.com/gin-gonic/gin"
)

func Recovery(logger *logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		// A client that hung up cannot be answered.
		if ne, ok := recovered.(*net.OpError); ok {
			if se, ok := ne.Err.(*os.SyscallError); ok {
				msg := strings.ToLower(se.Error())
				if strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset by peer") {
					c.Abort()
					return
				}
			}
		}

		if gin.IsDebugging() {
			httpRequest, _ := httputil.DumpRequest(c.Request, false)
			logger.Error("[Recovery] panic recovered:\n%s\n%v\n%s", string(httpRequest), recovered, string(debug.Stack()))
		} else {
			logger.Error("[Recovery] panic recovered on %s %s: %v", c.Request.Method, c.Request.URL.Path, recovered)
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	})
}
