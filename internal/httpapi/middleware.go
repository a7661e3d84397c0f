package httpapi

import (
	"dialer-platform/internal/audit"

	"github.com/gin-gonic/gin"
)

// ClientIP copies gin's resolved client IP into the request context for audit records.
func ClientIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(audit.WithClientIP(c.Request.Context(), c.ClientIP()))
		c.Next()
	}
}
