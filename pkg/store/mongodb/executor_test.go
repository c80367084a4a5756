package mongodb

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lowfatcats/contentstore/pkg/observability/logger"
	"github.com/lowfatcats/contentstore/pkg/repository/document"
)

type call struct {
	op         string
	collection string
	filter     any
	doc        any
	upsert     bool
	opts       *options.FindOptions
}

type fakeAPI struct {
	calls   []call
	one     bson.M
	many    []bson.M
	matched int64
	err     error
}

func (f *fakeAPI) FindOne(_ context.Context, collection string, filter any) (bson.M, error) {
	f.calls = append(f.calls, call{op: "findOne", collection: collection, filter: filter})
	return f.one, f.err
}

func (f *fakeAPI) Find(_ context.Context, collection string, filter any, opts *options.FindOptions) ([]bson.M, error) {
	f.calls = append(f.calls, call{op: "find", collection: collection, filter: filter, opts: opts})
	return f.many, f.err
}

func (f *fakeAPI) InsertOne(_ context.Context, collection string, doc any) error {
	f.calls = append(f.calls, call{op: "insert", collection: collection, doc: doc})
	return f.err
}

func (f *fakeAPI) ReplaceOne(_ context.Context, collection string, filter, doc any, upsert bool) (int64, error) {
	f.calls = append(f.calls, call{op: "replace", collection: collection, filter: filter, doc: doc, upsert: upsert})
	return f.matched, f.err
}

func (f *fakeAPI) UpdateOne(_ context.Context, collection string, filter, update any, upsert bool) (int64, error) {
	f.calls = append(f.calls, call{op: "update", collection: collection, filter: filter, doc: update, upsert: upsert})
	return f.matched, f.err
}

func (f *fakeAPI) DeleteOne(_ context.Context, collection string, filter any) error {
	f.calls = append(f.calls, call{op: "delete", collection: collection, filter: filter})
	return f.err
}

func (f *fakeAPI) last() call { return f.calls[len(f.calls)-1] }

func newTestExecutor(t *testing.T, api *fakeAPI) *Executor {
	t.Helper()
	e, err := NewExecutor(api, "Dev_", logger.NewNop())
	require.NoError(t, err)
	return e
}

func int64p(v int64) *int64 { return &v }

func duplicateKeyError() error {
	return mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key error"}}}
}

func TestExecutor_GetOne(t *testing.T) {
	api := &fakeAPI{}
	e := newTestExecutor(t, api)

	rec, err := e.GetOne(context.Background(), document.BriefTable, document.BriefKey("dog", "id1"))
	require.NoError(t, err)
	require.Nil(t, rec)
	require.Equal(t, "Dev_Brief", api.last().collection)
	require.Equal(t, bson.D{{Key: "_id", Value: "dog#id1"}}, api.last().filter)

	api.one = bson.M{
		"_id":  "c1",
		"ID":   "c1",
		"Data": bson.M{"tags": bson.A{"a", int32(2)}, "nested": bson.D{{Key: "k", Value: "v"}}},
	}
	rec, err = e.GetOne(context.Background(), document.ContentTable, document.ContentKey("c1"))
	require.NoError(t, err)
	require.Equal(t, document.Record{
		"ID":   "c1",
		"Data": map[string]any{"tags": []any{"a", int64(2)}, "nested": map[string]any{"k": "v"}},
	}, rec)
}

func TestExecutor_BatchGet(t *testing.T) {
	api := &fakeAPI{many: []bson.M{{"_id": "dog#id2", "Type": "dog", "IID": "id2"}}}
	e := newTestExecutor(t, api)

	out, err := e.BatchGet(context.Background(), document.BriefTable, []document.Key{
		document.BriefKey("dog", "id2"),
		document.BriefKey("dog", "id9"),
	})
	require.NoError(t, err)
	require.Equal(t, []document.Record{{"Type": "dog", "IID": "id2"}}, out.Items)
	require.Zero(t, out.UnprocessedKeys)
	require.Equal(t, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: []string{"dog#id2", "dog#id9"}}}}}, api.last().filter)

	empty, err := e.BatchGet(context.Background(), document.BriefTable, nil)
	require.NoError(t, err)
	require.NotNil(t, empty.Items)
	require.Len(t, api.calls, 1)
}

func TestExecutor_ScanPaging(t *testing.T) {
	api := &fakeAPI{many: []bson.M{
		{"_id": "a", "ID": "a"},
		{"_id": "b", "ID": "b"},
		{"_id": "c", "ID": "c"},
	}}
	e := newTestExecutor(t, api)

	page, err := e.Scan(context.Background(), document.ScanInput{Table: document.ContentTable, PageSize: 2})
	require.NoError(t, err)
	require.Equal(t, int64(3), *api.last().opts.Limit)
	require.Len(t, page.Items, 2)
	require.Equal(t, document.Cursor{"_id": "b"}, page.Next)
	require.Equal(t, 2, page.Stats.Count)

	api.many = api.many[2:]
	page, err = e.Scan(context.Background(), document.ScanInput{Table: document.ContentTable, PageSize: 2, Cursor: page.Next})
	require.NoError(t, err)
	require.Equal(t, bson.D{{Key: "_id", Value: bson.D{{Key: "$gt", Value: "b"}}}}, api.last().filter)
	require.Len(t, page.Items, 1)
	require.True(t, page.Next.Done())
}

func TestExecutor_QueryCursorCarriesSortValue(t *testing.T) {
	api := &fakeAPI{many: []bson.M{
		{"_id": "dog#id1", "Type": "dog", "IID": "id1", "TS": int64(30)},
		{"_id": "dog#id2", "Type": "dog", "IID": "id2", "TS": int32(20)},
	}}
	e := newTestExecutor(t, api)

	page, err := e.Query(context.Background(), document.QueryInput{Partition: "dog", Index: document.IndexTypeTS, PageSize: 1})
	require.NoError(t, err)
	require.Equal(t, document.Cursor{"_id": "dog#id1", "TS": int64(30)}, page.Next)
	require.Equal(t, bson.D{{Key: "TS", Value: -1}, {Key: "_id", Value: -1}}, api.last().opts.Sort)
}

func TestQueryFilter(t *testing.T) {
	tests := []struct {
		name string
		in   document.QueryInput
		want bson.D
	}{
		{
			name: "partition",
			in:   document.QueryInput{Partition: "dog"},
			want: bson.D{{Key: "Type", Value: "dog"}},
		},
		{
			name: "prefix is quoted",
			in:   document.QueryInput{Partition: "dog", Prefix: "a.b"},
			want: bson.D{{Key: "Type", Value: "dog"}, {Key: "IID", Value: bson.D{{Key: "$regex", Value: `^a\.b`}}}},
		},
		{
			name: "base table resume",
			in:   document.QueryInput{Partition: "dog", Ascending: true, Cursor: document.Cursor{"_id": "dog#id1"}},
			want: bson.D{{Key: "Type", Value: "dog"}, {Key: "_id", Value: bson.D{{Key: "$gt", Value: "dog#id1"}}}},
		},
		{
			name: "ts range",
			in:   document.QueryInput{Partition: "dog", Index: document.IndexTypeTS, Range: document.KeyRange{Min: int64p(1), Max: int64p(2)}},
			want: bson.D{{Key: "Type", Value: "dog"}, {Key: "TS", Value: bson.D{
				{Key: "$exists", Value: true}, {Key: "$gte", Value: int64(1)}, {Key: "$lte", Value: int64(2)},
			}}},
		},
		{
			name: "featured descending resume",
			in: document.QueryInput{
				Partition: "dog",
				Index:     document.IndexTypeFeatured,
				Range:     document.KeyRange{Max: int64p(9)},
				Cursor:    document.Cursor{"_id": "dog#id4", "FeatureDate": int64(5)},
			},
			want: bson.D{
				{Key: "Type", Value: "dog"},
				{Key: "FeatureDate", Value: bson.D{{Key: "$exists", Value: true}, {Key: "$lte", Value: int64(9)}}},
				{Key: "$or", Value: bson.A{
					bson.D{{Key: "FeatureDate", Value: bson.D{{Key: "$lt", Value: int64(5)}}}},
					bson.D{{Key: "FeatureDate", Value: int64(5)}, {Key: "_id", Value: bson.D{{Key: "$lt", Value: "dog#id4"}}}},
				}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := QueryFilter(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	_, err := QueryFilter(document.QueryInput{Partition: "dog", Index: document.IndexTypeTS, Cursor: document.Cursor{"_id": "x"}})
	require.ErrorIs(t, err, document.ErrInvalidKey)
}

func TestExecutor_PutConditions(t *testing.T) {
	item := document.Record{"ID": "c1", "Data": map[string]any{"a": 1}}

	t.Run("must not exist inserts", func(t *testing.T) {
		api := &fakeAPI{}
		e := newTestExecutor(t, api)
		require.NoError(t, e.Put(context.Background(), document.ContentTable, item, document.MustNotExist))
		require.Equal(t, "insert", api.last().op)
		require.Equal(t, "c1", api.last().doc.(bson.M)["_id"])
	})

	t.Run("duplicate key is a condition failure", func(t *testing.T) {
		api := &fakeAPI{err: duplicateKeyError()}
		e := newTestExecutor(t, api)
		err := e.Put(context.Background(), document.ContentTable, item, document.MustNotExist)
		require.ErrorIs(t, err, document.ErrConditionFailed)
		var we mongo.WriteException
		require.ErrorAs(t, err, &we)
	})

	t.Run("must exist without match", func(t *testing.T) {
		api := &fakeAPI{}
		e := newTestExecutor(t, api)
		err := e.Put(context.Background(), document.ContentTable, item, document.MustExist)
		require.ErrorIs(t, err, document.ErrConditionFailed)
		require.False(t, api.last().upsert)
	})

	t.Run("unconditional upserts", func(t *testing.T) {
		api := &fakeAPI{}
		e := newTestExecutor(t, api)
		require.NoError(t, e.Put(context.Background(), document.BriefTable, document.Record{"Type": "dog", "IID": "id1"}, document.Unconditional))
		require.Equal(t, "replace", api.last().op)
		require.True(t, api.last().upsert)
		require.Equal(t, bson.D{{Key: "_id", Value: "dog#id1"}}, api.last().filter)
	})

	t.Run("other errors pass through", func(t *testing.T) {
		boom := errors.New("connection reset")
		api := &fakeAPI{err: boom}
		e := newTestExecutor(t, api)
		err := e.Put(context.Background(), document.ContentTable, item, document.Unconditional)
		require.Same(t, boom, err)
	})
}

func TestExecutor_Update(t *testing.T) {
	api := &fakeAPI{matched: 1}
	e := newTestExecutor(t, api)

	err := e.Update(context.Background(), document.ContentTable, document.ContentKey("c1"), document.Record{"Data": "x"}, document.MustExist)
	require.NoError(t, err)
	require.Equal(t, bson.D{{Key: "$set", Value: bson.M{"Data": "x", "ID": "c1"}}}, api.last().doc)

	api.matched = 0
	err = e.Update(context.Background(), document.ContentTable, document.ContentKey("c1"), document.Record{"Data": "x"}, document.MustExist)
	require.ErrorIs(t, err, document.ErrConditionFailed)

	err = e.Update(context.Background(), document.ContentTable, document.Key{}, document.Record{"Data": "x"}, document.Unconditional)
	require.ErrorIs(t, err, document.ErrInvalidKey)
}

func TestExecutor_Delete(t *testing.T) {
	api := &fakeAPI{}
	e := newTestExecutor(t, api)
	require.NoError(t, e.Delete(context.Background(), document.ContentTable, document.ContentKey("c1")))
	require.Equal(t, "delete", api.last().op)
	require.Equal(t, "Dev_Content", api.last().collection)
}

type recordingIndexCreator struct {
	collection string
	models     []mongo.IndexModel
}

func (r *recordingIndexCreator) CreateIndexes(_ context.Context, collection string, models []mongo.IndexModel) error {
	r.collection, r.models = collection, models
	return nil
}

func TestEnsureIndexes(t *testing.T) {
	creator := &recordingIndexCreator{}
	require.NoError(t, EnsureIndexes(context.Background(), creator, "Dev_"))
	require.Equal(t, "Dev_Brief", creator.collection)
	require.Len(t, creator.models, 2)
	require.Equal(t, "TypeTS", *creator.models[0].Options.Name)
	require.Equal(t, "TypeFeatured", *creator.models[1].Options.Name)
}
