package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Relay headers recognized on inbound requests.
const (
	headerCaller  = "X-Relay-Caller"
	headerFeature = "X-Relay-Feature"
	headerByok    = "X-Relay-Byok"
)

// corsMiddleware answers preflight requests and stamps the allowed origin.
// An empty allowlist permits any origin.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if len(allowed) == 0 {
				c.Header("Access-Control-Allow-Origin", "*")
			} else if _, ok := allowed[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+headerCaller+", "+headerFeature+", "+headerByok)
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
