// Package rangequery turns caller-supplied timestamp bounds, calendar dates and
// ordering hints into a concrete range predicate over the TypeTS index.
package rangequery

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/lowfatcats/contentstore/pkg/repository/document"
)

// Options are the caller's inputs. Nil pointers and empty strings mean unset.
type Options struct {
	MinTS     *int64
	MaxTS     *int64
	StartDate string
	EndDate   string
	Ascending *bool
}

// RangeQuery is the planned predicate. Min and Max are inclusive epoch
// milliseconds.
type RangeQuery struct {
	Min       *int64
	Max       *int64
	Ascending bool
}

// ConditionKind names the shape of the key condition a RangeQuery produces.
type ConditionKind int

const (
	None ConditionKind = iota
	Between
	AtLeast
	AtMost
)

func (k ConditionKind) String() string {
	switch k {
	case Between:
		return "between"
	case AtLeast:
		return "at_least"
	case AtMost:
		return "at_most"
	default:
		return "none"
	}
}

// Condition reports which bounds are present.
func (q RangeQuery) Condition() ConditionKind {
	switch {
	case q.Min != nil && q.Max != nil:
		return Between
	case q.Min != nil:
		return AtLeast
	case q.Max != nil:
		return AtMost
	default:
		return None
	}
}

// KeyRange converts the plan into the store's range type.
func (q RangeQuery) KeyRange() document.KeyRange {
	return document.KeyRange{Min: q.Min, Max: q.Max}
}

// Plan computes the range predicate. Explicit timestamps always win over
// bounds derived from dates; dates are compared chronologically so their
// order does not matter for the bounds, only for the default direction.
func Plan(opts Options) RangeQuery {
	start, hasStart := ParseDate(opts.StartDate, time.Time{})
	var base time.Time
	if hasStart {
		base = start
	}
	end, hasEnd := ParseDate(opts.EndDate, base)

	var minDate, maxDate *time.Time
	switch {
	case hasStart && hasEnd:
		lo, hi := start, end
		if hi.Before(lo) {
			lo, hi = hi, lo
		}
		minDate, maxDate = &lo, &hi
	case hasStart:
		minDate = &start
	case hasEnd:
		maxDate = &end
	}

	q := RangeQuery{Min: opts.MinTS, Max: opts.MaxTS}
	if q.Min == nil && minDate != nil {
		q.Min = millis(*minDate)
	}
	if q.Max == nil && maxDate != nil {
		q.Max = millis(*maxDate)
	}

	switch {
	case opts.Ascending != nil:
		q.Ascending = *opts.Ascending
	case hasStart && hasEnd:
		q.Ascending = start.Before(end)
	default:
		q.Ascending = true
	}
	return q
}

func millis(t time.Time) *int64 {
	ms := t.UnixMilli()
	return &ms
}

var relativeDays = regexp.MustCompile(`^([+-])(\d+)d$`)

// ParseDate interprets text as a calendar instant in UTC. Accepted forms are
// epoch milliseconds, the date and timestamp layouts understood by cast
// (2006-01-02, RFC3339 and friends) and, when base is non-zero, day offsets
// such as +7d or -30d relative to base. Anything else is reported as unset.
// Any bare integer is epoch milliseconds, so "2017" is 2017ms after the epoch,
// not the year 2017.
func ParseDate(text string, base time.Time) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}

	if m := relativeDays.FindStringSubmatch(text); m != nil {
		if base.IsZero() {
			return time.Time{}, false
		}
		days, err := strconv.Atoi(m[2])
		if err != nil {
			return time.Time{}, false
		}
		if m[1] == "-" {
			days = -days
		}
		return base.AddDate(0, 0, days), true
	}

	if ms, err := strconv.ParseInt(text, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), true
	}

	t, err := cast.ToTimeInDefaultLocationE(text, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// ParseBool applies the transport coercion for ordering flags: true, "true"
// and "1" are true, everything else false.
func ParseBool(text string) bool {
	return text == "true" || text == "1"
}
