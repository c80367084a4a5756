// Package pager turns a page-at-a-time store primitive into a lazy record
// sequence with a minimum spacing between store calls.
package pager

import (
	"context"
	"iter"
	"time"

	"github.com/lowfatcats/contentstore/pkg/observability/logger"
	"github.com/lowfatcats/contentstore/pkg/repository/document"
)

// FetchFunc retrieves the page that starts at cursor. A nil cursor asks for the
// first page.
type FetchFunc func(ctx context.Context, cursor document.Cursor) (document.Page, error)

// Observer receives per-page and per-wait notifications, typically for metrics.
type Observer interface {
	PageFetched(name string, stats document.PageStats, took time.Duration)
	Throttled(name string, wait time.Duration)
}

// Stats accumulates what the store reported over a traversal.
type Stats struct {
	Pages            int
	Total            int
	TotalScanned     int
	ConsumedCapacity float64
}

// Pager walks a cursor chain one page at a time. Consecutive store calls start
// at least the throttle interval apart, measured from one call start to the
// next. A Pager is single-use and not safe for concurrent use.
type Pager struct {
	fetch    FetchFunc
	name     string
	throttle time.Duration
	log      logger.Logger
	observer Observer
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	items      []document.Record
	pos        int
	current    document.Record
	cursor     document.Cursor
	lastCallAt time.Time
	started    bool
	done       bool
	err        error
	stats      Stats
}

// Option configures a Pager.
type Option func(*Pager)

// WithThrottle sets the minimum interval between store calls. Zero fetches back to back.
func WithThrottle(d time.Duration) Option {
	return func(p *Pager) { p.throttle = d }
}

// WithName labels log lines and observer calls (for example "Dev_Brief.SCAN").
func WithName(name string) Option {
	return func(p *Pager) { p.name = name }
}

// WithLogger sets the logger used for per-page diagnostics.
func WithLogger(log logger.Logger) Option {
	return func(p *Pager) {
		if log != nil {
			p.log = log
		}
	}
}

// WithObserver registers a metrics observer.
func WithObserver(o Observer) Option {
	return func(p *Pager) { p.observer = o }
}

// WithClock replaces the time source and the context-aware sleep.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pager) {
		p.now = now
		p.sleep = sleep
	}
}

// New creates a Pager over fetch.
func New(fetch FetchFunc, opts ...Option) *Pager {
	p := &Pager{
		fetch: fetch,
		name:  "pager",
		log:   logger.NewNop(),
		now:   time.Now,
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Next advances to the next record, fetching a page when the current one is
// exhausted. It returns false at the end of the sequence or on error; check Err.
// Not calling Next again leaves nothing pending.
func (p *Pager) Next(ctx context.Context) bool {
	for p.pos >= len(p.items) {
		if p.done {
			p.current = nil
			return false
		}
		if err := p.fetchPage(ctx); err != nil {
			p.err = err
			p.done = true
			p.items = nil
			p.current = nil
			return false
		}
	}
	p.current = p.items[p.pos]
	p.pos++
	return true
}

// Record returns the record Next advanced to.
func (p *Pager) Record() document.Record { return p.current }

// Err returns the error that ended the sequence, if any.
func (p *Pager) Err() error { return p.err }

// Stats returns the totals accumulated so far.
func (p *Pager) Stats() Stats { return p.stats }

// All adapts the pager to a range-over-func sequence. Breaking out of the loop
// abandons the traversal; a failure is yielded once as the final element.
func (p *Pager) All(ctx context.Context) iter.Seq2[document.Record, error] {
	return func(yield func(document.Record, error) bool) {
		for p.Next(ctx) {
			if !yield(p.Record(), nil) {
				return
			}
		}
		if err := p.Err(); err != nil {
			yield(nil, err)
		}
	}
}

func (p *Pager) fetchPage(ctx context.Context) error {
	if p.started && p.throttle > 0 {
		if wait := p.lastCallAt.Add(p.throttle).Sub(p.now()); wait > 0 {
			p.log.Debug("throttling store call", "name", p.name, "sleep_ms", wait.Milliseconds())
			if p.observer != nil {
				p.observer.Throttled(p.name, wait)
			}
			if err := p.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}

	p.log.Debug("fetching page", "name", p.name, "page", p.stats.Pages)
	p.started = true
	p.lastCallAt = p.now()
	page, err := p.fetch(ctx, p.cursor)
	if err != nil {
		return err
	}
	took := p.now().Sub(p.lastCallAt)

	p.stats.Pages++
	p.stats.Total += page.Stats.Count
	p.stats.TotalScanned += page.Stats.ScannedCount
	p.stats.ConsumedCapacity += page.Stats.ConsumedCapacity
	p.log.Debug("page fetched",
		"name", p.name,
		"page", p.stats.Pages-1,
		"count", page.Stats.Count,
		"scanned_count", page.Stats.ScannedCount,
		"total", p.stats.Total,
		"total_scanned", p.stats.TotalScanned,
		"consumed_capacity", page.Stats.ConsumedCapacity,
		"last_evaluated_key", map[string]any(page.Next),
	)
	if p.observer != nil {
		p.observer.PageFetched(p.name, page.Stats, took)
	}

	p.items = page.Items
	p.pos = 0
	p.cursor = page.Next
	if page.Next.Done() {
		p.done = true
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
