// Package content is the data-access facade over the Content and Brief record
// families: point reads, batch reads, index queries, list selection, throttled
// traversals and audited writes.
package content

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lowfatcats/contentstore/pkg/batch"
	"github.com/lowfatcats/contentstore/pkg/filter"
	"github.com/lowfatcats/contentstore/pkg/listselect"
	"github.com/lowfatcats/contentstore/pkg/observability/logger"
	"github.com/lowfatcats/contentstore/pkg/pager"
	"github.com/lowfatcats/contentstore/pkg/rangequery"
	"github.com/lowfatcats/contentstore/pkg/repository/document"
)

// Observer receives service level events for metrics.
type Observer interface {
	pager.Observer
	FilterRejected(op string)
}

type nopObserver struct{}

func (nopObserver) PageFetched(string, document.PageStats, time.Duration) {}
func (nopObserver) Throttled(string, time.Duration)                       {}
func (nopObserver) FilterRejected(string)                                 {}

// ItemResult wraps a point read. Item is nil when nothing is stored under the key.
type ItemResult struct {
	Item document.Record `json:"Item,omitempty"`
}

// ListResult is the outcome of a batch read or single-page query.
// Count is what the store reported for the page; a post-read filter shrinks
// Items but leaves Count untouched. Batch reads count the returned items.
type ListResult struct {
	Items            []document.Record `json:"Items"`
	Count            int               `json:"Count"`
	ScannedCount     int               `json:"ScannedCount,omitempty"`
	ConsumedCapacity float64           `json:"ConsumedCapacity,omitempty"`
	UnprocessedKeys  int               `json:"UnprocessedKeys,omitempty"`
	LastEvaluatedKey document.Cursor   `json:"LastEvaluatedKey,omitempty"`
}

func fromBatch(out document.BatchOutput) ListResult {
	return ListResult{
		Items:            out.Items,
		Count:            len(out.Items),
		ConsumedCapacity: out.ConsumedCapacity,
		UnprocessedKeys:  out.UnprocessedKeys,
	}
}

// Status reports what Put did.
type Status string

const (
	StatusCreated Status = "created"
	StatusUpdated Status = "updated"
)

// Service implements every read and write of the data layer on a document.Store.
type Service struct {
	store    document.Store
	cfg      Config
	log      logger.Logger
	now      func() time.Time
	observer Observer
	random   listselect.Random
	selector *listselect.Selector
	pagerOps []pager.Option
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock replaces the wall clock used for audit fields and featured queries.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithObserver registers a metrics observer.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithRandom sets the random source used for random list selection.
func WithRandom(r listselect.Random) Option {
	return func(s *Service) { s.random = r }
}

// WithPagerOptions appends options to every pager the service creates,
// typically a test clock.
func WithPagerOptions(opts ...pager.Option) Option {
	return func(s *Service) { s.pagerOps = append(s.pagerOps, opts...) }
}

// NewService creates the data-layer facade.
//
// Cosa fa: applica i default di cfg, collega logger, orologio e sorgente casuale.
// Cosa NON fa: non verifica la connessione allo store.
func NewService(store document.Store, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:    store,
		cfg:      cfg.withDefaults(),
		log:      logger.NewNop(),
		now:      time.Now,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.random == nil {
		s.random = newRandom()
	}
	s.selector = listselect.New(store, s.random, s.log)
	return s
}

// Get reads a Content item. With a filter option the item's Data must pass
// the filter or a *filter.RejectedError is returned.
func (s *Service) Get(ctx context.Context, id string, opts Options) (ItemResult, error) {
	s.log.Debug("Content.GET", "id", id)
	rec, err := s.store.GetOne(ctx, document.ContentTable, document.ContentKey(id))
	if err != nil {
		return ItemResult{}, err
	}

	fl := opts.Filter()
	if len(fl) > 0 && rec != nil && rec[document.AttrData] != nil {
		data, _ := rec[document.AttrData].(map[string]any)
		if !filter.Matches(data, fl) {
			s.observer.FilterRejected("get")
			return ItemResult{}, &filter.RejectedError{ID: id, Filter: opts["filter"]}
		}
	}
	return ItemResult{Item: rec}, nil
}

// GetBrief reads a Brief item.
func (s *Service) GetBrief(ctx context.Context, typ, iid string) (ItemResult, error) {
	s.log.Debug("Brief.GETBRIEF", "type", typ, "iid", iid)
	rec, err := s.store.GetOne(ctx, document.BriefTable, document.BriefKey(typ, iid))
	if err != nil {
		return ItemResult{}, err
	}
	return ItemResult{Item: rec}, nil
}

// GetBatch reads Content items in the order of ids, duplicates included.
func (s *Service) GetBatch(ctx context.Context, ids []string) (ListResult, error) {
	if len(ids) == 0 {
		s.log.Debug("skipping getBatch, no ids to look for")
		return ListResult{Items: []document.Record{}}, nil
	}
	s.log.Debug("Content.BATCH", "ids", ids)
	out, err := batch.Content(ctx, s.store, ids)
	if err != nil {
		return ListResult{}, err
	}
	return fromBatch(out), nil
}

// GetBatchBrief reads Brief items of one type in the order of iids.
func (s *Service) GetBatchBrief(ctx context.Context, typ string, iids []string) (ListResult, error) {
	if len(iids) == 0 {
		s.log.Debug("skipping getBatchBrief, no iids to look for", "type", typ)
		return ListResult{Items: []document.Record{}}, nil
	}
	s.log.Debug("Brief.BATCHGET", "type", typ, "iids", iids)
	out, err := batch.Brief(ctx, s.store, typ, iids)
	if err != nil {
		return ListResult{}, err
	}
	return fromBatch(out), nil
}

// QueryByTypeTS reads one page of Brief items of a type ordered by TS.
// Recognized options: limit, ascending, minTS, maxTS, startDate, endDate, filter.
func (s *Service) QueryByTypeTS(ctx context.Context, typ string, opts Options) (ListResult, error) {
	ro := rangequery.Options{
		MinTS:     opts.Int64("minTS"),
		MaxTS:     opts.Int64("maxTS"),
		StartDate: opts["startDate"],
		EndDate:   opts["endDate"],
	}
	if asc, ok := opts.Bool("ascending"); ok {
		ro.Ascending = &asc
	}
	plan := rangequery.Plan(ro)
	limit := opts.PositiveInt32Or("limit", int32(s.cfg.QueryTSLimit))

	s.log.Debug("Brief.QUERY",
		"type", typ,
		"index", document.IndexTypeTS,
		"condition", plan.Condition().String(),
		"min_ts", plan.Min,
		"max_ts", plan.Max,
		"ascending", plan.Ascending,
	)
	page, err := s.store.Query(ctx, document.QueryInput{
		Partition: typ,
		Index:     document.IndexTypeTS,
		Range:     plan.KeyRange(),
		PageSize:  limit,
		Ascending: plan.Ascending,
	})
	if err != nil {
		return ListResult{}, err
	}
	return s.filterPage("queryByTypeTS", typ, page, opts.Filter()), nil
}

// QueryByTypeFeatured reads one page of Brief items of a type whose
// FeatureDate is not in the future, newest first unless ascending is set.
func (s *Service) QueryByTypeFeatured(ctx context.Context, typ string, opts Options) (ListResult, error) {
	now := s.now().UnixMilli()
	limit := opts.PositiveInt32Or("limit", int32(s.cfg.FeaturedLimit))
	ascending := opts.BoolOr("ascending", false)

	s.log.Debug("Brief.QUERY", "type", typ, "index", document.IndexTypeFeatured, "feature_date_lte", now)
	page, err := s.store.Query(ctx, document.QueryInput{
		Partition: typ,
		Index:     document.IndexTypeFeatured,
		Range:     document.KeyRange{Max: &now},
		PageSize:  limit,
		Ascending: ascending,
	})
	if err != nil {
		return ListResult{}, err
	}
	return s.filterPage("queryByTypeFeatured", typ, page, opts.Filter()), nil
}

func (s *Service) filterPage(op, typ string, page document.Page, fl filter.List) ListResult {
	res := ListResult{
		Items:            page.Items,
		Count:            page.Stats.Count,
		ScannedCount:     page.Stats.ScannedCount,
		ConsumedCapacity: page.Stats.ConsumedCapacity,
		LastEvaluatedKey: page.Next,
	}
	if res.Items == nil {
		res.Items = []document.Record{}
	}
	if len(fl) > 0 {
		before := len(res.Items)
		res.Items = filter.Apply(res.Items, fl)
		s.log.Debug("filtered "+op, "type", typ, "before", before, "after", len(res.Items))
	}
	return res
}

// GetList selects a window of items from an explicit id list (ids) or from
// the list stored in Content item list under Data.<typ>. Recognized options:
// ids, list, start, limit, random, full, filter.
func (s *Service) GetList(ctx context.Context, typ string, opts Options) (ListResult, error) {
	s.log.Debug("started getList", "type", typ)
	out, err := s.selector.Select(ctx, typ, listselect.Options{
		IDs:    opts["ids"],
		List:   opts["list"],
		Start:  opts.IntOr("start", 0),
		Limit:  opts.IntOr("limit", s.cfg.ListLimit),
		Random: opts.BoolOr("random", false),
		Full:   opts.BoolOr("full", false),
		Filter: opts.Filter(),
	})
	if err != nil {
		if errors.Is(err, listselect.ErrMissingSource) {
			return ListResult{}, fmt.Errorf("%w: %w", ErrUsage, err)
		}
		return ListResult{}, err
	}
	return fromBatch(out), nil
}

// GetRandomList is GetList with random forced on.
func (s *Service) GetRandomList(ctx context.Context, typ string, opts Options) (ListResult, error) {
	return s.GetList(ctx, typ, opts.With("random", "true"))
}

// Scan traverses every Content item. Recognized options: pageSize (default
// 1), throttle in milliseconds.
func (s *Service) Scan(opts Options) *pager.Pager {
	return s.scan(document.ContentTable, opts.PositiveInt32Or("pageSize", int32(s.cfg.ScanPageSize)), opts)
}

// ScanBrief traverses every Brief item. Recognized options: pageSize
// (default 10), throttle in milliseconds.
func (s *Service) ScanBrief(opts Options) *pager.Pager {
	return s.scan(document.BriefTable, opts.PositiveInt32Or("pageSize", int32(s.cfg.ScanBriefPageSize)), opts)
}

func (s *Service) scan(table document.Table, pageSize int32, opts Options) *pager.Pager {
	in := document.ScanInput{Table: table, PageSize: pageSize}
	fetch := func(ctx context.Context, cursor document.Cursor) (document.Page, error) {
		in.Cursor = cursor
		return s.store.Scan(ctx, in)
	}
	return s.newPager(string(table)+".SCAN", fetch, opts)
}

// QueryByType traverses every Brief item of a type in IID order. Recognized
// options: prefix, ascending (default true), pageSize (default 10), throttle.
func (s *Service) QueryByType(typ string, opts Options) *pager.Pager {
	in := document.QueryInput{
		Partition: typ,
		Prefix:    opts["prefix"],
		PageSize:  opts.PositiveInt32Or("pageSize", int32(s.cfg.QueryPageSize)),
		Ascending: opts.BoolOr("ascending", true),
	}
	s.log.Debug("started queryByType", "type", typ, "prefix", in.Prefix)
	fetch := func(ctx context.Context, cursor document.Cursor) (document.Page, error) {
		in.Cursor = cursor
		return s.store.Query(ctx, in)
	}
	return s.newPager(string(document.BriefTable)+".QUERY", fetch, opts)
}

func (s *Service) newPager(name string, fetch pager.FetchFunc, opts Options) *pager.Pager {
	popts := []pager.Option{
		pager.WithName(name),
		pager.WithThrottle(opts.Millis("throttle", s.cfg.Throttle)),
		pager.WithLogger(s.log),
		pager.WithObserver(s.observer),
	}
	return pager.New(fetch, append(popts, s.pagerOps...)...)
}
