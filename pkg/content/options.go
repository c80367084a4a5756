package content

import (
	"strconv"
	"time"

	"github.com/lowfatcats/contentstore/pkg/filter"
)

// Options are read options as they arrive from a transport: query string
// parameters or CLI flags, all as strings. Recognized keys: filter, limit,
// start, ids, list, random, full, ascending, minTS, maxTS, startDate, endDate,
// prefix, pageSize, throttle (milliseconds).
type Options map[string]string

// Filter parses the filter option.
func (o Options) Filter() filter.List {
	return filter.Parse(o["filter"])
}

// Int parses a base-10 integer option. Invalid values count as unset.
func (o Options) Int(key string) (int, bool) {
	v, ok := o[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 0)
	if err != nil {
		return 0, false
	}
	return int(n), true
}

// IntOr returns the integer option or def when unset or invalid.
func (o Options) IntOr(key string, def int) int {
	if n, ok := o.Int(key); ok {
		return n
	}
	return def
}

// PositiveOr is IntOr that also treats non-positive values as unset.
func (o Options) PositiveOr(key string, def int) int {
	if n, ok := o.Int(key); ok && n > 0 {
		return n
	}
	return def
}

// Int32 parses a base-10 integer option that must fit in 32 bits, the width
// of store page sizes. Invalid or out-of-range values count as unset.
func (o Options) Int32(key string) (int32, bool) {
	v, ok := o[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(n), true
}

// PositiveInt32Or is PositiveOr for 32-bit options such as limit and pageSize.
func (o Options) PositiveInt32Or(key string, def int32) int32 {
	if n, ok := o.Int32(key); ok && n > 0 {
		return n
	}
	return def
}

// Int64 parses a base-10 int64 option, nil when unset or invalid.
func (o Options) Int64(key string) *int64 {
	v, ok := o[key]
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// Bool reports a boolean option. Only "true" and "1" are true. set is false
// when the key is absent.
func (o Options) Bool(key string) (value, set bool) {
	v, ok := o[key]
	if !ok {
		return false, false
	}
	return v == "true" || v == "1", true
}

// BoolOr returns the boolean option or def when absent.
func (o Options) BoolOr(key string, def bool) bool {
	if v, ok := o.Bool(key); ok {
		return v
	}
	return def
}

// Millis reads an integer option in milliseconds as a duration. Negative
// values count as unset.
func (o Options) Millis(key string, def time.Duration) time.Duration {
	if n, ok := o.Int(key); ok && n >= 0 {
		return time.Duration(n) * time.Millisecond
	}
	return def
}

// With returns a copy with key set to value.
func (o Options) With(key, value string) Options {
	out := make(Options, len(o)+1)
	for k, v := range o {
		out[k] = v
	}
	out[key] = value
	return out
}
