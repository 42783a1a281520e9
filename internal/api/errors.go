package api

import "github.com/gin-gonic/gin"

// Error type tags surfaced in the OpenAI-style error body.
const (
	errTypeInvalidRequest = "invalid_request_error"
	errTypeRateLimit      = "rate_limit_error"
	errTypeQuotaExceeded  = "quota_exceeded_error"
	errTypeServer         = "server_error"
	errTypeUpstream       = "upstream_error"
)

// errorBody renders the wire error shape: {"error":{"message","type"}}.
func errorBody(message, errType string) gin.H {
	return gin.H{"error": gin.H{"message": message, "type": errType}}
}
