package content

import (
	"math"
	"time"
)

// Config holds the defaults applied when a read does not specify an option.
type Config struct {
	ListLimit         int
	QueryTSLimit      int
	FeaturedLimit     int
	ScanPageSize      int
	ScanBriefPageSize int
	QueryPageSize     int
	Throttle          time.Duration
}

// DefaultConfig returns the defaults of the original data layer.
func DefaultConfig() Config {
	return Config{
		ListLimit:         5,
		QueryTSLimit:      10,
		FeaturedLimit:     5,
		ScanPageSize:      1,
		ScanBriefPageSize: 10,
		QueryPageSize:     10,
		Throttle:          time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ListLimit <= 0 {
		c.ListLimit = def.ListLimit
	}
	c.QueryTSLimit = pageSizeOr(c.QueryTSLimit, def.QueryTSLimit)
	c.FeaturedLimit = pageSizeOr(c.FeaturedLimit, def.FeaturedLimit)
	c.ScanPageSize = pageSizeOr(c.ScanPageSize, def.ScanPageSize)
	c.ScanBriefPageSize = pageSizeOr(c.ScanBriefPageSize, def.ScanBriefPageSize)
	c.QueryPageSize = pageSizeOr(c.QueryPageSize, def.QueryPageSize)
	if c.Throttle < 0 {
		c.Throttle = 0
	}
	return c
}

// pageSizeOr keeps n when it is a usable 32-bit page size.
func pageSizeOr(n, def int) int {
	if n <= 0 || n > math.MaxInt32 {
		return def
	}
	return n
}
