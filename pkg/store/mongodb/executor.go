package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lowfatcats/contentstore/pkg/observability/logger"
	"github.com/lowfatcats/contentstore/pkg/observability/metrics"
	"github.com/lowfatcats/contentstore/pkg/observability/tracing"
	"github.com/lowfatcats/contentstore/pkg/repository/document"
)

// API is the subset of Adapter the executor calls.
type API interface {
	FindOne(ctx context.Context, collection string, filter any) (bson.M, error)
	Find(ctx context.Context, collection string, filter any, opts *options.FindOptions) ([]bson.M, error)
	InsertOne(ctx context.Context, collection string, doc any) error
	ReplaceOne(ctx context.Context, collection string, filter, doc any, upsert bool) (int64, error)
	UpdateOne(ctx context.Context, collection string, filter, update any, upsert bool) (int64, error)
	DeleteOne(ctx context.Context, collection string, filter any) error
}

const (
	dbSystem = "mongodb"
	idField  = "_id"
)

// Executor implements document.Store on MongoDB. Content documents use the ID
// as _id, Brief documents use "Type#IID".
type Executor struct {
	api    API
	prefix string
	logger logger.Logger
}

var _ document.Store = (*Executor)(nil)

// NewExecutor creates a document.Store backed by api.
//
// Cosa fa: mappa chiavi, cursori e condizioni document su filtri e ordinamenti MongoDB.
// Cosa NON fa: non crea indici (vedi EnsureIndexes) e non riprova le chiamate fallite.
func NewExecutor(api API, prefix string, log logger.Logger) (*Executor, error) {
	if api == nil {
		return nil, fmt.Errorf("mongodb api is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Executor{api: api, prefix: prefix, logger: log}, nil
}

// CollectionName returns the collection of a record family.
func (e *Executor) CollectionName(t document.Table) string {
	return e.prefix + string(t)
}

func (e *Executor) GetOne(ctx context.Context, table document.Table, key document.Key) (rec document.Record, err error) {
	name := e.CollectionName(table)
	id, err := document.KeyString(table, key)
	if err != nil {
		return nil, err
	}
	ctx, done := e.begin(ctx, tracing.SpanOperationDBGet, "get", name)
	defer func() { done(err) }()

	e.logger.Debug("store get", "collection", name, "key", id)
	doc, err := e.api.FindOne(ctx, name, bson.D{{Key: idField, Value: id}})
	if err != nil || doc == nil {
		return nil, err
	}
	return fromDocument(doc), nil
}

func (e *Executor) BatchGet(ctx context.Context, table document.Table, keys []document.Key) (res document.BatchOutput, err error) {
	if len(keys) == 0 {
		return document.BatchOutput{Items: []document.Record{}}, nil
	}
	name := e.CollectionName(table)
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		id, err := document.KeyString(table, key)
		if err != nil {
			return document.BatchOutput{}, err
		}
		ids = append(ids, id)
	}
	ctx, done := e.begin(ctx, tracing.SpanOperationDBBatchGet, "batch_get", name, tracing.WithDBItemCount(len(ids)))
	defer func() { done(err) }()

	e.logger.Debug("store batch get", "collection", name, "keys", len(ids))
	docs, err := e.api.Find(ctx, name, bson.D{{Key: idField, Value: bson.D{{Key: "$in", Value: ids}}}}, options.Find())
	if err != nil {
		return document.BatchOutput{}, err
	}
	return document.BatchOutput{Items: fromDocuments(docs)}, nil
}

func (e *Executor) Scan(ctx context.Context, in document.ScanInput) (page document.Page, err error) {
	name := e.CollectionName(in.Table)
	filter := bson.D{}
	if !in.Cursor.Done() {
		id, ok := in.Cursor[idField].(string)
		if !ok {
			return document.Page{}, fmt.Errorf("%w: scan cursor without %s", document.ErrInvalidKey, idField)
		}
		filter = append(filter, bson.E{Key: idField, Value: bson.D{{Key: "$gt", Value: id}}})
	}
	opts := options.Find().SetSort(bson.D{{Key: idField, Value: 1}})
	if in.PageSize > 0 {
		opts.SetLimit(int64(in.PageSize) + 1)
	}
	ctx, done := e.begin(ctx, tracing.SpanOperationDBScan, "scan", name)
	defer func() { done(err) }()

	e.logger.Debug("store scan", "collection", name, "page_size", in.PageSize)
	docs, err := e.api.Find(ctx, name, filter, opts)
	if err != nil {
		return document.Page{}, err
	}
	return toPage(docs, int(in.PageSize), ""), nil
}

func (e *Executor) Query(ctx context.Context, in document.QueryInput) (page document.Page, err error) {
	name := e.CollectionName(document.BriefTable)
	filter, err := QueryFilter(in)
	if err != nil {
		return document.Page{}, err
	}
	opts := options.Find().SetSort(QuerySort(in))
	if in.PageSize > 0 {
		opts.SetLimit(int64(in.PageSize) + 1)
	}
	ctx, done := e.begin(ctx, tracing.SpanOperationDBQuery, "query", name)
	defer func() { done(err) }()

	e.logger.Debug("store query", "collection", name, "type", in.Partition, "index", string(in.Index),
		"min", in.Range.Min, "max", in.Range.Max, "prefix", in.Prefix)
	docs, err := e.api.Find(ctx, name, filter, opts)
	if err != nil {
		return document.Page{}, err
	}
	sortAttr := ""
	if in.Index != document.IndexNone {
		sortAttr = in.Index.SortAttribute()
	}
	return toPage(docs, int(in.PageSize), sortAttr), nil
}

// QueryFilter builds the filter of a Brief query. Index queries only match
// documents carrying the sort attribute.
func QueryFilter(in document.QueryInput) (bson.D, error) {
	filter := bson.D{{Key: document.AttrType, Value: in.Partition}}
	if in.Index == document.IndexNone {
		if in.Prefix != "" {
			filter = append(filter, bson.E{Key: document.AttrIID, Value: bson.D{{Key: "$regex", Value: "^" + regexp.QuoteMeta(in.Prefix)}}})
		}
		if !in.Cursor.Done() {
			id, ok := in.Cursor[idField].(string)
			if !ok {
				return nil, fmt.Errorf("%w: query cursor without %s", document.ErrInvalidKey, idField)
			}
			filter = append(filter, bson.E{Key: idField, Value: bson.D{{Key: compareOp(in.Ascending), Value: id}}})
		}
		return filter, nil
	}

	attr := in.Index.SortAttribute()
	cond := bson.D{{Key: "$exists", Value: true}}
	if in.Range.Min != nil {
		cond = append(cond, bson.E{Key: "$gte", Value: *in.Range.Min})
	}
	if in.Range.Max != nil {
		cond = append(cond, bson.E{Key: "$lte", Value: *in.Range.Max})
	}
	filter = append(filter, bson.E{Key: attr, Value: cond})

	if !in.Cursor.Done() {
		id, okID := in.Cursor[idField].(string)
		v, okV := in.Cursor[attr]
		if !okID || !okV {
			return nil, fmt.Errorf("%w: query cursor without %s and %s", document.ErrInvalidKey, idField, attr)
		}
		op := compareOp(in.Ascending)
		filter = append(filter, bson.E{Key: "$or", Value: bson.A{
			bson.D{{Key: attr, Value: bson.D{{Key: op, Value: v}}}},
			bson.D{{Key: attr, Value: v}, {Key: idField, Value: bson.D{{Key: op, Value: id}}}},
		}})
	}
	return filter, nil
}

// QuerySort orders by the index attribute, ties broken by _id.
func QuerySort(in document.QueryInput) bson.D {
	dir := -1
	if in.Ascending {
		dir = 1
	}
	if in.Index == document.IndexNone {
		return bson.D{{Key: idField, Value: dir}}
	}
	return bson.D{{Key: in.Index.SortAttribute(), Value: dir}, {Key: idField, Value: dir}}
}

func compareOp(ascending bool) string {
	if ascending {
		return "$gt"
	}
	return "$lt"
}

func (e *Executor) Put(ctx context.Context, table document.Table, item document.Record, cond document.Condition) (err error) {
	name := e.CollectionName(table)
	id, err := document.KeyString(table, item)
	if err != nil {
		return err
	}
	doc := bson.M{idField: id}
	for k, v := range item {
		doc[k] = v
	}
	ctx, done := e.begin(ctx, tracing.SpanOperationDBInsert, "put", name)
	defer func() { done(err) }()

	e.logger.Debug("store put", "collection", name, "key", id)
	filter := bson.D{{Key: idField, Value: id}}
	switch cond {
	case document.MustNotExist:
		return classifyInsert(e.api.InsertOne(ctx, name, doc))
	case document.MustExist:
		matched, err := e.api.ReplaceOne(ctx, name, filter, doc, false)
		return requireMatch(matched, err, name, id)
	default:
		_, err := e.api.ReplaceOne(ctx, name, filter, doc, true)
		return err
	}
}

func (e *Executor) Update(ctx context.Context, table document.Table, key document.Key, set document.Record, cond document.Condition) (err error) {
	name := e.CollectionName(table)
	k, err := document.KeyOf(table, key)
	if err != nil {
		return err
	}
	id, _ := document.KeyString(table, k)
	fields := bson.M{}
	for attr, v := range set {
		fields[attr] = v
	}
	for attr, v := range k {
		fields[attr] = v
	}
	ctx, done := e.begin(ctx, tracing.SpanOperationDBUpdate, "update", name)
	defer func() { done(err) }()

	e.logger.Debug("store update", "collection", name, "key", id)
	filter := bson.D{{Key: idField, Value: id}}
	update := bson.D{{Key: "$set", Value: fields}}
	switch cond {
	case document.MustNotExist:
		fields[idField] = id
		return classifyInsert(e.api.InsertOne(ctx, name, fields))
	case document.MustExist:
		matched, err := e.api.UpdateOne(ctx, name, filter, update, false)
		return requireMatch(matched, err, name, id)
	default:
		_, err := e.api.UpdateOne(ctx, name, filter, update, true)
		return err
	}
}

func (e *Executor) Delete(ctx context.Context, table document.Table, key document.Key) (err error) {
	name := e.CollectionName(table)
	id, err := document.KeyString(table, key)
	if err != nil {
		return err
	}
	ctx, done := e.begin(ctx, tracing.SpanOperationDBDelete, "delete", name)
	defer func() { done(err) }()

	e.logger.Debug("store delete", "collection", name, "key", id)
	return e.api.DeleteOne(ctx, name, bson.D{{Key: idField, Value: id}})
}

func (e *Executor) begin(ctx context.Context, op tracing.SpanOperation, metricOp, collection string, opts ...tracing.DatabaseSpanOption) (context.Context, func(error)) {
	started := time.Now()
	opts = append(opts, tracing.WithDBSystem(dbSystem), tracing.WithDBTable(collection))
	ctx, span := tracing.StartDatabaseSpan(ctx, op, opts...)
	return ctx, func(err error) {
		tracing.End(span, err)
		outcome := metrics.OutcomeOK
		switch {
		case errors.Is(err, document.ErrConditionFailed):
			outcome = metrics.OutcomeConditionFailed
		case err != nil:
			outcome = metrics.OutcomeError
		}
		metrics.RecordStoreCall(metricOp, collection, outcome, time.Since(started), 0)
	}
}

func classifyInsert(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %w", document.ErrConditionFailed, err)
	}
	return err
}

func requireMatch(matched int64, err error, collection, id string) error {
	if err != nil {
		return err
	}
	if matched == 0 {
		return fmt.Errorf("%w: %s %s does not exist", document.ErrConditionFailed, collection, id)
	}
	return nil
}

// toPage trims the look-ahead document and derives the cursor from the last
// kept one. A cursor is only returned when more documents remain.
func toPage(docs []bson.M, pageSize int, sortAttr string) document.Page {
	var next document.Cursor
	if pageSize > 0 && len(docs) > pageSize {
		docs = docs[:pageSize]
		last := docs[len(docs)-1]
		next = document.Cursor{idField: last[idField]}
		if sortAttr != "" {
			next[sortAttr] = normalize(last[sortAttr])
		}
	}
	items := fromDocuments(docs)
	return document.Page{
		Items: items,
		Next:  next,
		Stats: document.PageStats{Count: len(items), ScannedCount: len(items)},
	}
}

func fromDocuments(docs []bson.M) []document.Record {
	out := make([]document.Record, 0, len(docs))
	for _, doc := range docs {
		out = append(out, fromDocument(doc))
	}
	return out
}

func fromDocument(doc bson.M) document.Record {
	rec := make(document.Record, len(doc))
	for k, v := range doc {
		if k == idField {
			continue
		}
		rec[k] = normalize(v)
	}
	return rec
}

// normalize converts driver container types into plain maps and slices.
func normalize(v any) any {
	switch t := v.(type) {
	case bson.M:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = normalize(e)
		}
		return m
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalize(e.Value)
		}
		return m
	case bson.A:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = normalize(e)
		}
		return s
	case int32:
		return int64(t)
	default:
		return v
	}
}
