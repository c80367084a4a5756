package document

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// InMemoryStore is an in-process Store for local development and tests. It
// orders scans by primary key and treats the TypeTS and TypeFeatured indexes
// as sparse, like the DynamoDB local secondary indexes.
type InMemoryStore struct {
	mu     sync.RWMutex
	tables map[Table]map[string]Record
	calls  map[string]int
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tables: map[Table]map[string]Record{ContentTable: {}, BriefTable: {}},
		calls:  map[string]int{},
	}
}

// Calls reports how many times an operation (GetOne, BatchGet, Scan, Query,
// Put, Update, Delete) has been invoked.
func (s *InMemoryStore) Calls(op string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[op]
}

func (s *InMemoryStore) count(op string) {
	s.calls[op]++
}

// GetOne returns a copy of the item or nil when absent.
func (s *InMemoryStore) GetOne(_ context.Context, table Table, key Key) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("GetOne")

	id, err := KeyString(table, key)
	if err != nil {
		return nil, err
	}
	rec, ok := s.tables[table][id]
	if !ok {
		return nil, nil
	}
	return cloneRecord(rec), nil
}

// BatchGet returns the items found for keys in unspecified order.
func (s *InMemoryStore) BatchGet(_ context.Context, table Table, keys []Key) (BatchOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("BatchGet")

	seen := make(map[string]struct{}, len(keys))
	out := BatchOutput{Items: []Record{}}
	for _, key := range keys {
		id, err := KeyString(table, key)
		if err != nil {
			return BatchOutput{}, err
		}
		if _, dup := seen[id]; dup {
			return BatchOutput{}, fmt.Errorf("%w: provided list of item keys contains duplicates", ErrInvalidKey)
		}
		seen[id] = struct{}{}
		if rec, ok := s.tables[table][id]; ok {
			out.Items = append(out.Items, cloneRecord(rec))
		}
	}
	return out, nil
}

// Scan walks the table in primary key order.
func (s *InMemoryStore) Scan(_ context.Context, in ScanInput) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("Scan")

	ids := slices.Sorted(maps.Keys(s.tables[in.Table]))
	start := 0
	if !in.Cursor.Done() {
		after, err := KeyString(in.Table, Key(in.Cursor))
		if err != nil {
			return Page{}, err
		}
		start, _ = slices.BinarySearch(ids, after)
		if start < len(ids) && ids[start] == after {
			start++
		}
	}

	records := make([]Record, 0, len(ids)-start)
	for _, id := range ids[start:] {
		records = append(records, s.tables[in.Table][id])
	}
	return s.page(in.Table, records, in.PageSize, ""), nil
}

// Query returns one page of Brief items of a type ordered by the index attribute.
func (s *InMemoryStore) Query(_ context.Context, in QueryInput) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("Query")

	sortAttr := in.Index.SortAttribute()
	var matches []Record
	for _, rec := range s.tables[BriefTable] {
		if rec[AttrType] != in.Partition {
			continue
		}
		if in.Index == IndexNone {
			if iid, _ := rec[AttrIID].(string); strings.HasPrefix(iid, in.Prefix) {
				matches = append(matches, rec)
			}
			continue
		}
		n, ok := Number(rec[sortAttr])
		if !ok {
			continue
		}
		if in.Range.Min != nil && n < float64(*in.Range.Min) {
			continue
		}
		if in.Range.Max != nil && n > float64(*in.Range.Max) {
			continue
		}
		matches = append(matches, rec)
	}

	slices.SortFunc(matches, func(a, b Record) int {
		if in.Index != IndexNone {
			na, _ := Number(a[sortAttr])
			nb, _ := Number(b[sortAttr])
			if c := cmp.Compare(na, nb); c != 0 {
				return c
			}
		}
		return cmp.Compare(a[AttrIID].(string), b[AttrIID].(string))
	})
	if !in.Ascending {
		slices.Reverse(matches)
	}

	if !in.Cursor.Done() {
		after, _ := in.Cursor[AttrIID].(string)
		for i, rec := range matches {
			if rec[AttrIID] == after {
				matches = matches[i+1:]
				break
			}
		}
	}
	return s.page(BriefTable, matches, in.PageSize, sortAttr), nil
}

func (s *InMemoryStore) page(table Table, records []Record, size int32, sortAttr string) Page {
	limit := len(records)
	if size > 0 && int(size) < limit {
		limit = int(size)
	}

	p := Page{Items: make([]Record, limit)}
	for i := range limit {
		p.Items[i] = cloneRecord(records[i])
	}
	p.Stats = PageStats{Count: limit, ScannedCount: limit}

	if limit < len(records) {
		last := records[limit-1]
		p.Next = Cursor{}
		for _, attr := range table.KeyAttributes() {
			p.Next[attr] = last[attr]
		}
		if sortAttr != "" && sortAttr != AttrIID {
			p.Next[sortAttr] = last[sortAttr]
		}
	}
	return p
}

// Put writes a whole item.
func (s *InMemoryStore) Put(_ context.Context, table Table, item Record, cond Condition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("Put")

	key, err := KeyOf(table, item)
	if err != nil {
		return err
	}
	id, _ := KeyString(table, key)
	if err := s.check(table, id, cond); err != nil {
		return err
	}
	s.tables[table][id] = cloneRecord(item)
	return nil
}

// Update sets top-level attributes, creating the item when allowed by cond.
func (s *InMemoryStore) Update(_ context.Context, table Table, key Key, set Record, cond Condition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("Update")

	id, err := KeyString(table, key)
	if err != nil {
		return err
	}
	if err := s.check(table, id, cond); err != nil {
		return err
	}
	rec, ok := s.tables[table][id]
	if !ok {
		rec = Record{}
		maps.Copy(rec, key)
	}
	for k, v := range cloneRecord(set) {
		rec[k] = v
	}
	s.tables[table][id] = rec
	return nil
}

// Delete removes an item. Deleting an absent item is not an error.
func (s *InMemoryStore) Delete(_ context.Context, table Table, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("Delete")

	id, err := KeyString(table, key)
	if err != nil {
		return err
	}
	delete(s.tables[table], id)
	return nil
}

func (s *InMemoryStore) check(table Table, id string, cond Condition) error {
	_, exists := s.tables[table][id]
	switch {
	case cond == MustNotExist && exists:
		return fmt.Errorf("%w: %s %s already exists", ErrConditionFailed, table, id)
	case cond == MustExist && !exists:
		return fmt.Errorf("%w: %s %s does not exist", ErrConditionFailed, table, id)
	}
	return nil
}

// Number converts the numeric representations produced by the executors and
// by JSON decoding into a float64.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func cloneRecord(rec Record) Record {
	if rec == nil {
		return nil
	}
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch value := v.(type) {
	case map[string]any:
		return cloneRecord(value)
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}
