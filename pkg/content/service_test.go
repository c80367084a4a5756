package content

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lowfatcats/contentstore/pkg/filter"
	"github.com/lowfatcats/contentstore/pkg/pager"
	"github.com/lowfatcats/contentstore/pkg/repository/document"
)

type countingObserver struct {
	rejected []string
	pages    int
	waits    []time.Duration
}

func (o *countingObserver) PageFetched(string, document.PageStats, time.Duration) { o.pages++ }
func (o *countingObserver) Throttled(_ string, d time.Duration)                   { o.waits = append(o.waits, d) }
func (o *countingObserver) FilterRejected(op string)                              { o.rejected = append(o.rejected, op) }

func TestService_Get(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, fixtureStore(t))

	res, err := svc.Get(ctx, "dog#1", nil)
	require.NoError(t, err)
	require.Equal(t, "Rex", res.Item["Data"].(map[string]any)["name"])

	res, err = svc.Get(ctx, "missing", nil)
	require.NoError(t, err)
	require.Nil(t, res.Item)
}

func TestService_GetFilter(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		filter   string
		rejected bool
	}{
		{name: "passes positive filter", id: "dog#1", filter: "animalStatus:Available,Hold"},
		{name: "passes negative filter", id: "dog#1", filter: "-animalStatus:Adopted"},
		{name: "passes array membership", id: "dog#1", filter: "tags:friendly"},
		{name: "fails positive filter", id: "dog#2", filter: "animalStatus:Available", rejected: true},
		{name: "fails negative filter", id: "dog#2", filter: "-tags:small", rejected: true},
		{name: "item without data is not filtered", id: "empty", filter: "animalStatus:Available"},
		{name: "missing item is not filtered", id: "nope", filter: "animalStatus:Available"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := &countingObserver{}
			svc := newTestService(t, fixtureStore(t), WithObserver(obs))
			_, err := svc.Get(context.Background(), tt.id, Options{"filter": tt.filter})
			if !tt.rejected {
				require.NoError(t, err)
				require.Empty(t, obs.rejected)
				return
			}
			require.ErrorIs(t, err, filter.ErrRejected)
			var rejected *filter.RejectedError
			require.True(t, errors.As(err, &rejected))
			require.Equal(t, fmt.Sprintf("%s was rejected by filter %s", tt.id, tt.filter), err.Error())
			require.Equal(t, []string{"get"}, obs.rejected)
		})
	}
}

func TestService_GetBrief(t *testing.T) {
	svc := newTestService(t, fixtureStore(t))
	res, err := svc.GetBrief(context.Background(), "dog", "id2")
	require.NoError(t, err)
	require.Equal(t, "Hold", res.Item["animalStatus"])

	res, err = svc.GetBrief(context.Background(), "dog", "id99")
	require.NoError(t, err)
	require.Nil(t, res.Item)
}

func TestService_GetBatchBrief(t *testing.T) {
	tests := []struct {
		name string
		iids []string
		want []string
	}{
		{name: "several", iids: []string{"id3", "id1"}, want: []string{"id3", "id1"}},
		{name: "one", iids: []string{"id2"}, want: []string{"id2"}},
		{name: "none", iids: nil, want: []string{}},
		{name: "duplicates", iids: []string{"id1", "id2", "id1"}, want: []string{"id1", "id2", "id1"}},
		{name: "unknown dropped", iids: []string{"id1", "nope"}, want: []string{"id1"}},
		{name: "only unknown", iids: []string{"nope", "nada"}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := fixtureStore(t)
			svc := newTestService(t, store)
			res, err := svc.GetBatchBrief(context.Background(), "dog", tt.iids)
			require.NoError(t, err)
			require.Equal(t, tt.want, iidsOf(res.Items))
			require.Equal(t, len(tt.want), res.Count)
			if len(tt.iids) == 0 {
				require.Zero(t, store.Calls("BatchGet"))
			}
		})
	}
}

func TestService_GetBatch(t *testing.T) {
	svc := newTestService(t, fixtureStore(t))
	res, err := svc.GetBatch(context.Background(), []string{"dog#2", "dog#1", "dog#2", "unknown"})
	require.NoError(t, err)
	require.Equal(t, []string{"dog#2", "dog#1", "dog#2"}, iidsOf(res.Items))

	res, err = svc.GetBatch(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, res.Items)
	require.NotNil(t, res.Items)
}

func TestService_QueryByTypeTS(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{name: "all ascending", opts: nil, want: []string{"id1", "id2", "id3", "id4"}},
		{name: "limit as string", opts: Options{"limit": "3", "ascending": "true"}, want: []string{"id1", "id2", "id3"}},
		{name: "min and max", opts: Options{"minTS": "1501863044192", "maxTS": "1501949438656"}, want: []string{"id1", "id2"}},
		{name: "descending", opts: Options{"minTS": "1501863044192", "maxTS": "1501949438656", "ascending": "false"}, want: []string{"id2", "id1"}},
		{name: "exact ts", opts: Options{"minTS": "1501863044192", "maxTS": "1501863044192"}, want: []string{"id1"}},
		{name: "too restrictive", opts: Options{"minTS": "1501863044193", "maxTS": "1501949438655"}, want: []string{}},
		{name: "min only", opts: Options{"minTS": "1502035838656"}, want: []string{"id3", "id4"}},
		{name: "max only", opts: Options{"maxTS": "1501949438656"}, want: []string{"id1", "id2"}},
		{name: "dates", opts: Options{"startDate": "2017-08-04", "endDate": "2017-08-06"}, want: []string{"id1", "id2"}},
		{name: "dates reversed are descending", opts: Options{"startDate": "2017-08-06", "endDate": "2017-08-04"}, want: []string{"id2", "id1"}},
		{
			name: "filter",
			opts: Options{"minTS": "1501863044192", "maxTS": "1501949438656", "filter": "IID:id1,id2;-IID:id2"},
			want: []string{"id1"},
		},
		{name: "invalid number is unset", opts: Options{"minTS": "number", "limit": "x"}, want: []string{"id1", "id2", "id3", "id4"}},
		{name: "limit beyond 32 bits is unset", opts: Options{"limit": "4294967297"}, want: []string{"id1", "id2", "id3", "id4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, fixtureStore(t))
			res, err := svc.QueryByTypeTS(context.Background(), "dog", tt.opts)
			require.NoError(t, err)
			require.Equal(t, tt.want, iidsOf(res.Items))
		})
	}
}

func TestService_QueryByTypeTS_FilterKeepsStoreCount(t *testing.T) {
	svc := newTestService(t, fixtureStore(t))
	res, err := svc.QueryByTypeTS(context.Background(), "dog", Options{
		"minTS":  "1501863044192",
		"maxTS":  "1501949438656",
		"filter": "IID:id1",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"id1"}, iidsOf(res.Items))
	require.Equal(t, 2, res.Count)
}

func TestService_QueryByTypeTS_UnknownType(t *testing.T) {
	svc := newTestService(t, fixtureStore(t))
	res, err := svc.QueryByTypeTS(context.Background(), "unknown", nil)
	require.NoError(t, err)
	require.Empty(t, res.Items)
}

func TestService_QueryByTypeFeatured(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{name: "descending by default, future excluded", opts: nil, want: []string{"id3", "id1"}},
		{name: "limit", opts: Options{"limit": "1"}, want: []string{"id3"}},
		{name: "ascending", opts: Options{"ascending": "1"}, want: []string{"id1", "id3"}},
		{name: "filter", opts: Options{"filter": "featured"}, want: []string{"id1"}},
		{name: "limit beyond 32 bits is unset", opts: Options{"limit": "4294967297"}, want: []string{"id3", "id1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, fixtureStore(t))
			res, err := svc.QueryByTypeFeatured(context.Background(), "dog", tt.opts)
			require.NoError(t, err)
			require.Equal(t, tt.want, iidsOf(res.Items))
		})
	}
}

func TestService_GetList(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{name: "ids", opts: Options{"ids": "id2,id1"}, want: []string{"id2", "id1"}},
		{name: "ids with type prefix", opts: Options{"ids": "dog#id2,dog#id1"}, want: []string{"id2", "id1"}},
		{name: "brief filter", opts: Options{"ids": "id1,id2,id3", "filter": "animalStatus:Available,Hold"}, want: []string{"id1", "id2"}},
		{name: "string numbers and booleans", opts: Options{"ids": "id1,id2,id3", "start": "1", "limit": "1", "full": "false"}, want: []string{"id2"}},
		{name: "full", opts: Options{"ids": "dog#1,dog#2", "full": "true"}, want: []string{"dog#1", "dog#2"}},
		{name: "full filter nests under Data", opts: Options{"ids": "dog#1,dog#2", "full": "1", "filter": "-animalStatus:Adopted"}, want: []string{"dog#1"}},
		{name: "default limit", opts: Options{"ids": "id1,id2,id3,id4,id1,id2"}, want: []string{"id1", "id2", "id3", "id4", "id1"}},
		{name: "list doc", opts: Options{"list": "lists"}, want: []string{"id1", "id2", "id3"}},
		{name: "huge limit clips", opts: Options{"ids": "id1,id2,id3", "start": "1", "limit": "9223372036854775807"}, want: []string{"id2", "id3"}},
		{name: "huge start is empty", opts: Options{"ids": "id1,id2", "start": "9223372036854775807", "limit": "9223372036854775807"}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, fixtureStore(t))
			res, err := svc.GetList(context.Background(), "dog", tt.opts)
			require.NoError(t, err)
			require.Equal(t, tt.want, iidsOf(res.Items))
		})
	}
}

func TestService_GetListUsageError(t *testing.T) {
	svc := newTestService(t, fixtureStore(t))
	_, err := svc.GetList(context.Background(), "dog", Options{"limit": "3"})
	require.ErrorIs(t, err, ErrUsage)

	_, err = svc.GetRandomList(context.Background(), "dog", nil)
	require.ErrorIs(t, err, ErrUsage)
}

func TestService_GetRandomList(t *testing.T) {
	svc := newTestService(t, fixtureStore(t))

	res, err := svc.GetRandomList(context.Background(), "dog", Options{"ids": "id1,id2"})
	require.NoError(t, err)
	got := iidsOf(res.Items)
	slices.Sort(got)
	require.Equal(t, []string{"id1", "id2"}, got)

	res, err = svc.GetRandomList(context.Background(), "dog", Options{"ids": "id1,id2,id3,id4", "limit": "2"})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	require.NotEqual(t, res.Items[0]["IID"], res.Items[1]["IID"])

	res, err = svc.GetRandomList(context.Background(), "dog", Options{"list": "lists"})
	require.NoError(t, err)
	require.Len(t, res.Items, 3)
}

func TestService_Writes(t *testing.T) {
	ctx := context.Background()
	store := document.NewInMemoryStore()
	svc := newTestService(t, store)
	data := map[string]any{"title": "Hello"}

	require.NoError(t, svc.Create(ctx, "article#1", data, "alice"))
	err := svc.Create(ctx, "article#1", data, "alice")
	require.ErrorIs(t, err, document.ErrConditionFailed)

	require.NoError(t, svc.Update(ctx, "article#1", map[string]any{"title": "Updated"}, "bob"))
	res, err := svc.Get(ctx, "article#1", nil)
	require.NoError(t, err)
	require.Equal(t, "Updated", res.Item["Data"].(map[string]any)["title"])
	require.Equal(t, "alice", res.Item["CreatedBy"])
	require.Equal(t, "bob", res.Item["UpdatedBy"])
	require.Equal(t, "2018-02-19T02:35:05.620Z", res.Item["UpdatedAt"])

	err = svc.Update(ctx, "article#2", data, "bob")
	require.ErrorIs(t, err, document.ErrConditionFailed)

	status, err := svc.Put(ctx, "article#2", data, "carol")
	require.NoError(t, err)
	require.Equal(t, StatusCreated, status)
	status, err = svc.Put(ctx, "article#2", map[string]any{"title": "Again"}, "dave")
	require.NoError(t, err)
	require.Equal(t, StatusUpdated, status)

	require.NoError(t, svc.Delete(ctx, "article#2"))
	require.NoError(t, svc.Delete(ctx, "article#2"))
	res, err = svc.Get(ctx, "article#2", nil)
	require.NoError(t, err)
	require.Nil(t, res.Item)

	err = svc.Create(ctx, "", data, "alice")
	require.ErrorIs(t, err, ErrUsage)
}

func TestService_BriefWrites(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, document.NewInMemoryStore())

	require.NoError(t, svc.PutBrief(ctx, document.Record{"Type": "dog", "IID": "id9", "name": "Rex"}))
	require.NoError(t, svc.PutBrief(ctx, document.Record{"Type": "dog", "IID": "id9", "name": "Max"}))
	res, err := svc.GetBrief(ctx, "dog", "id9")
	require.NoError(t, err)
	require.Equal(t, "Max", res.Item["name"])

	require.ErrorIs(t, svc.PutBrief(ctx, document.Record{"Type": "dog"}), ErrUsage)
	require.ErrorIs(t, svc.PutBrief(ctx, document.Record{"Type": "", "IID": "x"}), ErrUsage)

	require.NoError(t, svc.DeleteBrief(ctx, "dog", "id9"))
	res, err = svc.GetBrief(ctx, "dog", "id9")
	require.NoError(t, err)
	require.Nil(t, res.Item)
}

type failingUpdateStore struct {
	*document.InMemoryStore
	err error
}

func (s failingUpdateStore) Update(context.Context, document.Table, document.Key, document.Record, document.Condition) error {
	return s.err
}

func TestService_PutPassesThroughStoreErrors(t *testing.T) {
	boom := errors.New("ProvisionedThroughputExceededException")
	store := failingUpdateStore{InMemoryStore: document.NewInMemoryStore(), err: boom}
	svc := newTestService(t, store)

	_, err := svc.Put(context.Background(), "x", nil, "a")
	require.ErrorIs(t, err, boom)
	require.Zero(t, store.Calls("Put"))
}

type instantClock struct{ now time.Time }

func (c *instantClock) Now() time.Time { return c.now }
func (c *instantClock) Sleep(_ context.Context, d time.Duration) error {
	c.now = c.now.Add(d)
	return nil
}

func TestService_Scan(t *testing.T) {
	clock := &instantClock{now: fixtureNow}
	obs := &countingObserver{}
	store := fixtureStore(t)
	svc := newTestService(t, store, WithObserver(obs), WithPagerOptions(pager.WithClock(clock.Now, clock.Sleep)))

	p := svc.Scan(nil)
	var ids []string
	for p.Next(context.Background()) {
		ids = append(ids, p.Record()["ID"].(string))
	}
	require.NoError(t, p.Err())
	require.Equal(t, []string{"dog#1", "dog#2", "empty", "lists"}, ids)
	require.Equal(t, 4, store.Calls("Scan"))
	require.Equal(t, 4, obs.pages)
	require.Len(t, obs.waits, 3)
	for _, w := range obs.waits {
		require.Equal(t, time.Second, w)
	}
}

func TestService_ScanBriefNoThrottle(t *testing.T) {
	clock := &instantClock{now: fixtureNow}
	obs := &countingObserver{}
	store := fixtureStore(t)
	svc := newTestService(t, store, WithObserver(obs), WithPagerOptions(pager.WithClock(clock.Now, clock.Sleep)))

	count := 0
	for _, err := range svc.ScanBrief(Options{"throttle": "0", "pageSize": "2"}).All(context.Background()) {
		require.NoError(t, err)
		count++
	}
	require.Equal(t, 5, count)
	require.Equal(t, 3, store.Calls("Scan"))
	require.Empty(t, obs.waits)
}

func TestService_ScanFirstItemOnly(t *testing.T) {
	store := fixtureStore(t)
	svc := newTestService(t, store)

	for rec, err := range svc.Scan(Options{"throttle": "60000"}).All(context.Background()) {
		require.NoError(t, err)
		require.Equal(t, "dog#1", rec["ID"])
		break
	}
	require.Equal(t, 1, store.Calls("Scan"))
}

func TestService_ScanBriefPageSizeBeyond32BitsIsUnset(t *testing.T) {
	store := fixtureStore(t)
	svc := newTestService(t, store)

	n := 0
	for _, err := range svc.ScanBrief(Options{"pageSize": "4294967297", "throttle": "0"}).All(context.Background()) {
		require.NoError(t, err)
		n++
	}
	require.Equal(t, 5, n)
	require.Equal(t, 1, store.Calls("Scan"))
}

func TestService_QueryByType(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{name: "all ascending", opts: Options{"throttle": "0"}, want: []string{"id1", "id2", "id3", "id4"}},
		{name: "descending", opts: Options{"throttle": "0", "ascending": "false"}, want: []string{"id4", "id3", "id2", "id1"}},
		{name: "prefix", opts: Options{"throttle": "0", "prefix": "id3"}, want: []string{"id3"}},
		{name: "small pages", opts: Options{"throttle": "0", "pageSize": "1"}, want: []string{"id1", "id2", "id3", "id4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, fixtureStore(t))
			p := svc.QueryByType("dog", tt.opts)
			var got []string
			for p.Next(context.Background()) {
				got = append(got, p.Record()["IID"].(string))
			}
			require.NoError(t, p.Err())
			require.Equal(t, tt.want, got)
		})
	}
}
