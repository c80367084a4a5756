// Package logging writes one structured log line per request.
package logging

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lowfatcats/contentstore/pkg/middleware/requestid"
	"github.com/lowfatcats/contentstore/pkg/observability/logger"
)

// Log field name constants
const (
	FieldRequestID  = "request_id"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatus     = "status"
	FieldDurationMS = "duration_ms"
	FieldRemoteAddr = "remote_addr"
	FieldError      = "error"
)

// Config configures request logging middleware behavior.
type Config struct {
	// ExcludedPathPrefixes are not logged, e.g. "/metrics" and "/health".
	ExcludedPathPrefixes []string
}

// DefaultConfig returns default request logging behavior.
func DefaultConfig() Config {
	return Config{ExcludedPathPrefixes: []string{"/metrics", "/health"}}
}

// Logging creates middleware with default configuration.
func Logging(log logger.Logger) gin.HandlerFunc {
	return WithConfig(log, DefaultConfig())
}

// WithConfig logs completed requests. 5xx responses log at error level,
// 4xx at warn, the rest at info.
func WithConfig(log logger.Logger, cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, prefix := range cfg.ExcludedPathPrefixes {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []any{
			FieldRequestID, requestid.Get(c),
			FieldMethod, c.Request.Method,
			FieldPath, path,
			FieldStatus, status,
			FieldDurationMS, time.Since(start).Milliseconds(),
			FieldRemoteAddr, c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, FieldError, c.Errors.String())
		}

		switch {
		case status >= 500:
			log.Error("request completed", fields...)
		case status >= 400:
			log.Warn("request completed", fields...)
		default:
			log.Info("request completed", fields...)
		}
	}
}
