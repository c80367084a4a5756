// Package requestid tags every request with an identifier.
package requestid

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lowfatcats/contentstore/pkg/observability/logger"
)

// RequestIDHeader is the HTTP header name for request ID.
const RequestIDHeader = "X-Request-ID"

// ContextKey is the gin context key holding the request ID.
const ContextKey = "request_id"

// RequestID keeps an incoming X-Request-ID or generates a UUID, echoes it in
// the response and stores it in both the gin and the request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set(ContextKey, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Request = c.Request.WithContext(logger.ContextWithRequestID(c.Request.Context(), requestID))

		c.Next()
	}
}

// Get returns the request ID of c, or empty string if none.
func Get(c *gin.Context) string {
	return c.GetString(ContextKey)
}
