// Package metrics records Prometheus metrics for HTTP requests.
package metrics

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lowfatcats/contentstore/pkg/observability/metrics"
)

// Metrics records duration and count per method, route template and status,
// plus the in-flight gauge. Unmatched routes are labelled "unmatched".
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics.IncrementInFlight()
		defer metrics.DecrementInFlight()

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPMetrics(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
