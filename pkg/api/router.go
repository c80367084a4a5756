package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lowfatcats/contentstore/pkg/content"
	"github.com/lowfatcats/contentstore/pkg/health"
	"github.com/lowfatcats/contentstore/pkg/middleware/logging"
	"github.com/lowfatcats/contentstore/pkg/middleware/metrics"
	"github.com/lowfatcats/contentstore/pkg/middleware/ratelimit"
	"github.com/lowfatcats/contentstore/pkg/middleware/recovery"
	"github.com/lowfatcats/contentstore/pkg/middleware/requestid"
	"github.com/lowfatcats/contentstore/pkg/observability/logger"
	obsmetrics "github.com/lowfatcats/contentstore/pkg/observability/metrics"
	"github.com/lowfatcats/contentstore/pkg/version"
)

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	Service *content.Service
	Logger  logger.Logger
	// Health serves /health when set.
	Health *health.Registry
	// Metrics serves /metrics and records request metrics when set.
	Metrics *obsmetrics.Registry
	// Limiter rate limits the content routes when set.
	Limiter ratelimit.RateLimiter
	Version version.Info
}

// NewRouter builds the gin engine: request id, recovery, logging and metrics
// middleware, then the content routes under rate limiting.
func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	r := gin.New()
	r.Use(requestid.RequestID(), recovery.Recovery(log), logging.Logging(log))
	if cfg.Metrics != nil {
		r.Use(metrics.Metrics())
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}
	if cfg.Health != nil {
		r.GET("/health", healthHandler(cfg.Health))
	}
	r.GET("/version", func(c *gin.Context) { c.JSON(http.StatusOK, cfg.Version) })

	routes := r.Group("/")
	if cfg.Limiter != nil {
		routes.Use(ratelimit.RateLimit(cfg.Limiter, ratelimit.ClientIP))
	}
	NewHandler(cfg.Service, log).Register(routes)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:     "not_found",
			Message:   "route not found",
			RequestID: requestid.Get(c),
		})
	})
	return r
}

func healthHandler(reg *health.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := reg.Check(c.Request.Context())
		status := http.StatusOK
		if !result.IsHealthy() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, result)
	}
}
