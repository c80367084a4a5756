// Package documenttest checks document.Store implementations against the
// behaviour the content service relies on.
package documenttest

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowfatcats/contentstore/pkg/repository/document"
)

// Run exercises store, which must start empty.
func Run(t *testing.T, store document.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("content writes", func(t *testing.T) { contentWrites(ctx, t, store) })
	t.Run("brief queries", func(t *testing.T) { briefQueries(ctx, t, store) })
	t.Run("scan", func(t *testing.T) { scan(ctx, t, store) })
}

func contentWrites(ctx context.Context, t *testing.T, store document.Store) {
	key := document.ContentKey("dog#1")
	item := document.Record{
		document.AttrID:        "dog#1",
		document.AttrData:      map[string]any{"name": "Rex", "tags": []any{"big"}},
		document.AttrCreatedBy: "alice",
	}

	rec, err := store.GetOne(ctx, document.ContentTable, key)
	require.NoError(t, err)
	require.Nil(t, rec)

	require.NoError(t, store.Put(ctx, document.ContentTable, item, document.MustNotExist))
	require.ErrorIs(t, store.Put(ctx, document.ContentTable, item, document.MustNotExist), document.ErrConditionFailed)

	require.ErrorIs(t,
		store.Update(ctx, document.ContentTable, document.ContentKey("nope"), document.Record{document.AttrUpdatedBy: "bob"}, document.MustExist),
		document.ErrConditionFailed)
	require.NoError(t, store.Update(ctx, document.ContentTable, key, document.Record{
		document.AttrData:      map[string]any{"name": "Max"},
		document.AttrUpdatedBy: "bob",
	}, document.MustExist))

	rec, err = store.GetOne(ctx, document.ContentTable, key)
	require.NoError(t, err)
	assert.Equal(t, "dog#1", rec[document.AttrID])
	assert.Equal(t, "alice", rec[document.AttrCreatedBy])
	assert.Equal(t, "bob", rec[document.AttrUpdatedBy])
	assert.Equal(t, map[string]any{"name": "Max"}, rec[document.AttrData])

	require.NoError(t, store.Put(ctx, document.ContentTable, document.Record{document.AttrID: "dog#2"}, document.Unconditional))
	out, err := store.BatchGet(ctx, document.ContentTable, []document.Key{key, document.ContentKey("missing"), document.ContentKey("dog#2")})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"dog#1", "dog#2"}, attrs(out.Items, document.AttrID))

	require.NoError(t, store.Delete(ctx, document.ContentTable, document.ContentKey("dog#2")))
	rec, err = store.GetOne(ctx, document.ContentTable, document.ContentKey("dog#2"))
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func briefQueries(ctx context.Context, t *testing.T, store document.Store) {
	briefs := []document.Record{
		{"Type": "dog", "IID": "id1", "TS": int64(100), "FeatureDate": int64(1000)},
		{"Type": "dog", "IID": "id2", "TS": int64(200)},
		{"Type": "dog", "IID": "id3", "TS": int64(300), "FeatureDate": int64(3000)},
		{"Type": "dog", "IID": "id4", "TS": int64(400), "FeatureDate": int64(9000)},
		{"Type": "dog", "IID": "id5", "TS": int64(500)},
		{"Type": "cat", "IID": "a1", "TS": int64(150)},
		{"Type": "cat", "IID": "a2"},
		{"Type": "cat", "IID": "b1"},
	}
	for _, b := range briefs {
		require.NoError(t, store.Put(ctx, document.BriefTable, b, document.Unconditional))
	}

	rec, err := store.GetOne(ctx, document.BriefTable, document.BriefKey("dog", "id3"))
	require.NoError(t, err)
	ts, ok := document.Number(rec[document.AttrTS])
	require.True(t, ok)
	assert.Equal(t, 300.0, ts)

	lo, hi := int64(200), int64(400)
	page, err := store.Query(ctx, document.QueryInput{
		Partition: "dog",
		Index:     document.IndexTypeTS,
		Range:     document.KeyRange{Min: &lo, Max: &hi},
		Ascending: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"id2", "id3", "id4"}, attrs(page.Items, document.AttrIID))

	all := collectQuery(ctx, t, store, document.QueryInput{Partition: "dog", Index: document.IndexTypeTS, PageSize: 2})
	assert.Equal(t, []string{"id5", "id4", "id3", "id2", "id1"}, all)

	limit := int64(5000)
	page, err = store.Query(ctx, document.QueryInput{
		Partition: "dog",
		Index:     document.IndexTypeFeatured,
		Range:     document.KeyRange{Max: &limit},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"id3", "id1"}, attrs(page.Items, document.AttrIID))

	prefixed := collectQuery(ctx, t, store, document.QueryInput{Partition: "cat", Prefix: "a", Ascending: true, PageSize: 1})
	assert.Equal(t, []string{"a1", "a2"}, prefixed)

	require.NoError(t, store.Delete(ctx, document.BriefTable, document.BriefKey("cat", "b1")))
	rest := collectQuery(ctx, t, store, document.QueryInput{Partition: "cat", Ascending: true})
	assert.Equal(t, []string{"a1", "a2"}, rest)
}

func scan(ctx context.Context, t *testing.T, store document.Store) {
	var iids []string
	in := document.ScanInput{Table: document.BriefTable, PageSize: 3}
	for pages := 0; ; pages++ {
		require.Less(t, pages, 10, "scan does not terminate")
		page, err := store.Scan(ctx, in)
		require.NoError(t, err)
		require.LessOrEqual(t, len(page.Items), 3)
		iids = append(iids, attrs(page.Items, document.AttrIID)...)
		if page.Next.Done() {
			break
		}
		in.Cursor = page.Next
	}
	slices.Sort(iids)
	assert.Equal(t, []string{"a1", "a2", "id1", "id2", "id3", "id4", "id5"}, iids)
}

func collectQuery(ctx context.Context, t *testing.T, store document.Store, in document.QueryInput) []string {
	t.Helper()
	var out []string
	for pages := 0; ; pages++ {
		require.Less(t, pages, 20, "query does not terminate")
		page, err := store.Query(ctx, in)
		require.NoError(t, err)
		out = append(out, attrs(page.Items, document.AttrIID)...)
		if page.Next.Done() {
			return out
		}
		in.Cursor = page.Next
	}
}

func attrs(items []document.Record, attr string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, _ := item[attr].(string)
		out = append(out, s)
	}
	return out
}
