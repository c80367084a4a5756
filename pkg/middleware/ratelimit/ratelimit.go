// Package ratelimit applies a per-client token bucket to HTTP requests.
package ratelimit

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter decides whether a request for key may proceed.
type RateLimiter interface {
	Allow(key string) bool
}

// TokenBucketLimiter keeps one token bucket per key.
type TokenBucketLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewTokenBucketLimiter creates a limiter allowing requestsPerSecond on
// average and bursts of up to burst requests per key.
func NewTokenBucketLimiter(requestsPerSecond float64, burst int) *TokenBucketLimiter {
	return &TokenBucketLimiter{rate: rate.Limit(requestsPerSecond), burst: burst}
}

// Allow reports whether a request for key is within its bucket.
func (l *TokenBucketLimiter) Allow(key string) bool {
	limiter, _ := l.limiters.LoadOrStore(key, rate.NewLimiter(l.rate, l.burst))
	return limiter.(*rate.Limiter).Allow()
}

// KeyFunc extracts the rate limiting key of a request.
type KeyFunc func(*gin.Context) string

// ClientIP keys requests by client address.
func ClientIP(c *gin.Context) string { return c.ClientIP() }

// RateLimit answers 429 with Retry-After when the key of a request has no
// tokens left.
func RateLimit(limiter RateLimiter, keyFunc KeyFunc) gin.HandlerFunc {
	if keyFunc == nil {
		keyFunc = ClientIP
	}
	return func(c *gin.Context) {
		if !limiter.Allow(keyFunc(c)) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
