package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/lowfatcats/contentstore/pkg/observability/logger"
	"github.com/lowfatcats/contentstore/pkg/observability/metrics"
	"github.com/lowfatcats/contentstore/pkg/observability/tracing"
	"github.com/lowfatcats/contentstore/pkg/repository/document"
)

// API is the subset of Adapter the executor calls.
type API interface {
	GetItem(ctx context.Context, input *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error)
	BatchGetItem(ctx context.Context, input *dynamodb.BatchGetItemInput) (*dynamodb.BatchGetItemOutput, error)
	PutItem(ctx context.Context, input *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, input *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, input *dynamodb.DeleteItemInput) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, input *dynamodb.QueryInput) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, input *dynamodb.ScanInput) (*dynamodb.ScanOutput, error)
}

const dbSystem = "dynamodb"

// Executor implements document.Store on DynamoDB. Table names are the
// configured prefix followed by the record family ("Content", "Brief").
type Executor struct {
	api    API
	prefix string
	logger logger.Logger
}

var _ document.Store = (*Executor)(nil)

// NewExecutor creates a document.Store backed by api.
//
// Cosa fa: traduce le operazioni document in chiamate DynamoDB con espressioni
// di chiave e condizione, riportando capacità consumata e cursori.
// Cosa NON fa: nessun retry, nemmeno sulle chiavi non processate di un batch.
func NewExecutor(api API, prefix string, log logger.Logger) (*Executor, error) {
	if api == nil {
		return nil, fmt.Errorf("dynamodb api is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Executor{api: api, prefix: prefix, logger: log}, nil
}

// TableName returns the physical table name of a record family.
func (e *Executor) TableName(t document.Table) string {
	return e.prefix + string(t)
}

// GetOne reads a single item.
func (e *Executor) GetOne(ctx context.Context, table document.Table, key document.Key) (rec document.Record, err error) {
	name := e.TableName(table)
	av, err := marshalKey(table, key)
	if err != nil {
		return nil, err
	}
	ctx, done := e.begin(ctx, tracing.SpanOperationDBGet, "get", name)
	var capacity float64
	defer func() { done(err, capacity) }()

	e.logger.Debug("store get", "table", name, "key", keyString(table, key))
	out, err := e.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:              aws.String(name),
		Key:                    av,
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	})
	if err != nil {
		return nil, err
	}
	capacity = capacityUnits(out.ConsumedCapacity)
	if len(out.Item) == 0 {
		return nil, nil
	}
	return unmarshalRecord(out.Item)
}

// MaxBatchKeys is the most keys DynamoDB accepts in one BatchGetItem request.
const MaxBatchKeys = 100

// BatchGet reads keys in requests of at most MaxBatchKeys, sequentially.
// Unprocessed keys are counted, not retried.
func (e *Executor) BatchGet(ctx context.Context, table document.Table, keys []document.Key) (res document.BatchOutput, err error) {
	if len(keys) == 0 {
		return document.BatchOutput{Items: []document.Record{}}, nil
	}
	name := e.TableName(table)
	avKeys := make([]map[string]types.AttributeValue, 0, len(keys))
	for _, key := range keys {
		av, err := marshalKey(table, key)
		if err != nil {
			return document.BatchOutput{}, err
		}
		avKeys = append(avKeys, av)
	}
	ctx, done := e.begin(ctx, tracing.SpanOperationDBBatchGet, "batch_get", name, tracing.WithDBItemCount(len(keys)))
	defer func() { done(err, res.ConsumedCapacity) }()

	e.logger.Debug("store batch get", "table", name, "keys", len(keys))
	res = document.BatchOutput{Items: []document.Record{}}
	for chunk := range slices.Chunk(avKeys, MaxBatchKeys) {
		out, err := e.api.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
			RequestItems:           map[string]types.KeysAndAttributes{name: {Keys: chunk}},
			ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
		})
		if err != nil {
			return document.BatchOutput{}, err
		}
		items, err := unmarshalRecords(out.Responses[name])
		if err != nil {
			return document.BatchOutput{}, err
		}
		res.Items = append(res.Items, items...)
		for i := range out.ConsumedCapacity {
			res.ConsumedCapacity += aws.ToFloat64(out.ConsumedCapacity[i].CapacityUnits)
		}
		if pending, ok := out.UnprocessedKeys[name]; ok {
			res.UnprocessedKeys += len(pending.Keys)
		}
	}
	return res, nil
}

// Scan reads one page of a full-table traversal.
func (e *Executor) Scan(ctx context.Context, in document.ScanInput) (page document.Page, err error) {
	name := e.TableName(in.Table)
	input := &dynamodb.ScanInput{
		TableName:              aws.String(name),
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	}
	if in.PageSize > 0 {
		input.Limit = aws.Int32(in.PageSize)
	}
	if input.ExclusiveStartKey, err = marshalCursor(in.Cursor); err != nil {
		return document.Page{}, err
	}
	ctx, done := e.begin(ctx, tracing.SpanOperationDBScan, "scan", name)
	defer func() { done(err, page.Stats.ConsumedCapacity) }()

	e.logger.Debug("store scan", "table", name, "page_size", in.PageSize)
	out, err := e.api.Scan(ctx, input)
	if err != nil {
		return document.Page{}, err
	}
	return toPage(out.Items, out.LastEvaluatedKey, out.Count, out.ScannedCount, out.ConsumedCapacity)
}

// Query reads one page of a Brief partition in index order.
func (e *Executor) Query(ctx context.Context, in document.QueryInput) (page document.Page, err error) {
	name := e.TableName(document.BriefTable)
	expr, values := KeyCondition(in)
	avValues, err := attributevalue.MarshalMap(values)
	if err != nil {
		return document.Page{}, fmt.Errorf("marshal key condition values: %w", err)
	}
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(name),
		KeyConditionExpression:    aws.String(expr),
		ExpressionAttributeNames:  map[string]string{"#t": document.AttrType},
		ExpressionAttributeValues: avValues,
		ScanIndexForward:          aws.Bool(in.Ascending),
		ReturnConsumedCapacity:    types.ReturnConsumedCapacityTotal,
	}
	if in.Index != document.IndexNone {
		input.IndexName = aws.String(string(in.Index))
	}
	if in.PageSize > 0 {
		input.Limit = aws.Int32(in.PageSize)
	}
	if input.ExclusiveStartKey, err = marshalCursor(in.Cursor); err != nil {
		return document.Page{}, err
	}
	ctx, done := e.begin(ctx, tracing.SpanOperationDBQuery, "query", name, tracing.WithDBStatement(expr))
	defer func() { done(err, page.Stats.ConsumedCapacity) }()

	e.logger.Debug("store query", "table", name, "type", in.Partition, "index", string(in.Index),
		"min", in.Range.Min, "max", in.Range.Max, "prefix", in.Prefix)
	out, err := e.api.Query(ctx, input)
	if err != nil {
		return document.Page{}, err
	}
	return toPage(out.Items, out.LastEvaluatedKey, out.Count, out.ScannedCount, out.ConsumedCapacity)
}

// KeyCondition renders the key condition expression of a query and its
// placeholder values. "#t" always names the Type attribute.
func KeyCondition(in document.QueryInput) (string, map[string]any) {
	values := map[string]any{":type": in.Partition}
	if in.Index == document.IndexNone {
		if in.Prefix == "" {
			return "#t = :type", values
		}
		values[":prefix"] = in.Prefix
		return "(#t = :type) and begins_with(IID, :prefix)", values
	}

	attr := in.Index.SortAttribute()
	minName, maxName := ":min"+attr, ":max"+attr
	switch {
	case in.Range.Min != nil && in.Range.Max != nil:
		values[minName], values[maxName] = *in.Range.Min, *in.Range.Max
		return fmt.Sprintf("(#t = :type) and (%s BETWEEN %s and %s)", attr, minName, maxName), values
	case in.Range.Min != nil:
		values[minName] = *in.Range.Min
		return fmt.Sprintf("(#t = :type) and (%s >= %s)", attr, minName), values
	case in.Range.Max != nil:
		values[maxName] = *in.Range.Max
		return fmt.Sprintf("(#t = :type) and (%s <= %s)", attr, maxName), values
	default:
		return "#t = :type", values
	}
}

// Put writes a whole item.
func (e *Executor) Put(ctx context.Context, table document.Table, item document.Record, cond document.Condition) (err error) {
	name := e.TableName(table)
	key, err := document.KeyOf(table, item)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	ctx, done := e.begin(ctx, tracing.SpanOperationDBInsert, "put", name)
	var capacity float64
	defer func() { done(err, capacity) }()

	e.logger.Debug("store put", "table", name, "key", keyString(table, key))
	out, err := e.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:              aws.String(name),
		Item:                   av,
		ConditionExpression:    conditionExpression(table, cond),
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	})
	if err != nil {
		return classify(err)
	}
	capacity = capacityUnits(out.ConsumedCapacity)
	return nil
}

// Update sets top-level attributes of an item.
func (e *Executor) Update(ctx context.Context, table document.Table, key document.Key, set document.Record, cond document.Condition) (err error) {
	name := e.TableName(table)
	avKey, err := marshalKey(table, key)
	if err != nil {
		return err
	}
	expr, names, values := UpdateExpression(set)
	avValues, err := attributevalue.MarshalMap(values)
	if err != nil {
		return fmt.Errorf("marshal update values: %w", err)
	}
	input := &dynamodb.UpdateItemInput{
		TableName:              aws.String(name),
		Key:                    avKey,
		ConditionExpression:    conditionExpression(table, cond),
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	}
	if expr != "" {
		input.UpdateExpression = aws.String(expr)
		input.ExpressionAttributeNames = names
		input.ExpressionAttributeValues = avValues
	}
	ctx, done := e.begin(ctx, tracing.SpanOperationDBUpdate, "update", name, tracing.WithDBStatement(expr))
	var capacity float64
	defer func() { done(err, capacity) }()

	e.logger.Debug("store update", "table", name, "key", keyString(table, key))
	out, err := e.api.UpdateItem(ctx, input)
	if err != nil {
		return classify(err)
	}
	capacity = capacityUnits(out.ConsumedCapacity)
	return nil
}

// UpdateExpression renders "SET #a0 = :a0, ..." over the attributes of set in
// name order.
func UpdateExpression(set document.Record) (string, map[string]string, map[string]any) {
	if len(set) == 0 {
		return "", nil, nil
	}
	attrs := make([]string, 0, len(set))
	for attr := range set {
		attrs = append(attrs, attr)
	}
	sort.Strings(attrs)

	names := make(map[string]string, len(attrs))
	values := make(map[string]any, len(attrs))
	expr := "SET "
	for i, attr := range attrs {
		n, v := fmt.Sprintf("#a%d", i), fmt.Sprintf(":a%d", i)
		names[n] = attr
		values[v] = set[attr]
		if i > 0 {
			expr += ", "
		}
		expr += n + " = " + v
	}
	return expr, names, values
}

// Delete removes an item. Deleting an absent item is not an error.
func (e *Executor) Delete(ctx context.Context, table document.Table, key document.Key) (err error) {
	name := e.TableName(table)
	avKey, err := marshalKey(table, key)
	if err != nil {
		return err
	}
	ctx, done := e.begin(ctx, tracing.SpanOperationDBDelete, "delete", name)
	var capacity float64
	defer func() { done(err, capacity) }()

	e.logger.Debug("store delete", "table", name, "key", keyString(table, key))
	out, err := e.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:              aws.String(name),
		Key:                    avKey,
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	})
	if err != nil {
		return err
	}
	capacity = capacityUnits(out.ConsumedCapacity)
	return nil
}

// begin opens a span and returns the function that closes it and records metrics.
func (e *Executor) begin(ctx context.Context, op tracing.SpanOperation, metricOp, table string, opts ...tracing.DatabaseSpanOption) (context.Context, func(error, float64)) {
	started := time.Now()
	opts = append(opts, tracing.WithDBSystem(dbSystem), tracing.WithDBTable(table))
	ctx, span := tracing.StartDatabaseSpan(ctx, op, opts...)
	return ctx, func(err error, capacity float64) {
		tracing.End(span, err)
		metrics.RecordStoreCall(metricOp, table, outcome(err), time.Since(started), capacity)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, document.ErrConditionFailed):
		return metrics.OutcomeConditionFailed
	default:
		return metrics.OutcomeError
	}
}

func classify(err error) error {
	if IsConditionalCheckFailed(err) {
		return fmt.Errorf("%w: %w", document.ErrConditionFailed, err)
	}
	return err
}

func conditionExpression(table document.Table, cond document.Condition) *string {
	attr := table.KeyAttributes()[0]
	switch cond {
	case document.MustNotExist:
		return aws.String("attribute_not_exists(" + attr + ")")
	case document.MustExist:
		return aws.String("attribute_exists(" + attr + ")")
	default:
		return nil
	}
}

func marshalKey(table document.Table, key document.Key) (map[string]types.AttributeValue, error) {
	k, err := document.KeyOf(table, key)
	if err != nil {
		return nil, err
	}
	av, err := attributevalue.MarshalMap(k)
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	return av, nil
}

func keyString(table document.Table, key document.Key) string {
	s, _ := document.KeyString(table, key)
	return s
}

func marshalCursor(c document.Cursor) (map[string]types.AttributeValue, error) {
	if c.Done() {
		return nil, nil
	}
	av, err := attributevalue.MarshalMap(map[string]any(c))
	if err != nil {
		return nil, fmt.Errorf("marshal cursor: %w", err)
	}
	return av, nil
}

func unmarshalRecord(item map[string]types.AttributeValue) (document.Record, error) {
	var rec map[string]any
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return rec, nil
}

func unmarshalRecords(items []map[string]types.AttributeValue) ([]document.Record, error) {
	records := make([]document.Record, 0, len(items))
	for _, item := range items {
		rec, err := unmarshalRecord(item)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func toPage(items []map[string]types.AttributeValue, last map[string]types.AttributeValue, count, scanned int32, cc *types.ConsumedCapacity) (document.Page, error) {
	records, err := unmarshalRecords(items)
	if err != nil {
		return document.Page{}, err
	}
	page := document.Page{
		Items: records,
		Stats: document.PageStats{
			Count:            int(count),
			ScannedCount:     int(scanned),
			ConsumedCapacity: capacityUnits(cc),
		},
	}
	if len(last) > 0 {
		var next map[string]any
		if err := attributevalue.UnmarshalMap(last, &next); err != nil {
			return document.Page{}, fmt.Errorf("unmarshal cursor: %w", err)
		}
		page.Next = document.Cursor(next)
	}
	return page, nil
}

func capacityUnits(cc *types.ConsumedCapacity) float64 {
	if cc == nil {
		return 0
	}
	return aws.ToFloat64(cc.CapacityUnits)
}
