package middleware

import (
	"log/slog"
	"net/http"

	"github.com/fittrack/backend/internal/utils"
	"github.com/gin-gonic/gin"
)

// WebhookAPIKeyHeader carries the shared secret configured at the payment provider
const WebhookAPIKeyHeader = "X-API-Key"

// WebhookAPIKeyMiddleware rejects webhook deliveries without the shared API key.
// An empty configured key rejects everything.
func WebhookAPIKeyMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(WebhookAPIKeyHeader)
		if apiKey == "" || provided == "" || !utils.SecureCompare(provided, apiKey) {
			slog.Warn("webhook rejected", "module", "middleware", "ip", c.ClientIP(), "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}
		c.Next()
	}
}
