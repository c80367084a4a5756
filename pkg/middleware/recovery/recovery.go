// Package recovery turns handler panics into 500 responses.
package recovery

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/lowfatcats/contentstore/pkg/middleware/requestid"
	"github.com/lowfatcats/contentstore/pkg/observability/logger"
)

// Recovery recovers from panics, logs them with the stack trace and
// answers 500 unless a response was already written.
func Recovery(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				id := requestid.Get(c)
				log.Error("panic recovered",
					"request_id", id,
					"panic", r,
					"stack", string(debug.Stack()),
				)
				if !c.Writer.Written() {
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
						"error":      "internal_server_error",
						"message":    "an unexpected error occurred",
						"request_id": id,
					})
					return
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}
