// Package batch implements deduplicating batch reads that give results back in
// the caller's key order.
package batch

import (
	"context"

	"github.com/lowfatcats/contentstore/pkg/repository/document"
)

// Getter performs a single store batch read for unique keys. Results may come
// back in any order and misses are omitted.
type Getter[K comparable] func(ctx context.Context, keys []K) (document.BatchOutput, error)

// KeyFunc extracts the natural key from a returned record. ok is false for
// records that carry no usable key.
type KeyFunc[K comparable] func(rec document.Record) (key K, ok bool)

// Fetch deduplicates keys, calls get once and re-expands the response to the
// input order and multiplicity. Duplicate keys map to the same record value.
// Keys without a record are dropped. Empty input returns without calling get.
func Fetch[K comparable](ctx context.Context, keys []K, get Getter[K], keyOf KeyFunc[K]) (document.BatchOutput, error) {
	if len(keys) == 0 {
		return document.BatchOutput{Items: []document.Record{}}, nil
	}

	unique := Unique(keys)
	out, err := get(ctx, unique)
	if err != nil {
		return document.BatchOutput{}, err
	}

	lookup := make(map[K]document.Record, len(out.Items))
	for _, rec := range out.Items {
		if k, ok := keyOf(rec); ok {
			lookup[k] = rec
		}
	}

	items := make([]document.Record, 0, len(keys))
	for _, k := range keys {
		if rec, ok := lookup[k]; ok {
			items = append(items, rec)
		}
	}
	out.Items = items
	return out, nil
}

// Unique returns keys without duplicates, keeping the first occurrence order.
func Unique[K comparable](keys []K) []K {
	seen := make(map[K]struct{}, len(keys))
	out := make([]K, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// StringAttr returns a KeyFunc reading a string attribute, such as ID or IID.
func StringAttr(attr string) KeyFunc[string] {
	return func(rec document.Record) (string, bool) {
		v, ok := rec[attr].(string)
		return v, ok
	}
}

// Content fetches Content items by ID.
func Content(ctx context.Context, r document.Reader, ids []string) (document.BatchOutput, error) {
	get := func(ctx context.Context, ids []string) (document.BatchOutput, error) {
		keys := make([]document.Key, len(ids))
		for i, id := range ids {
			keys[i] = document.ContentKey(id)
		}
		return r.BatchGet(ctx, document.ContentTable, keys)
	}
	return Fetch(ctx, ids, get, StringAttr(document.AttrID))
}

// Brief fetches Brief items of one type by IID.
func Brief(ctx context.Context, r document.Reader, typ string, iids []string) (document.BatchOutput, error) {
	get := func(ctx context.Context, iids []string) (document.BatchOutput, error) {
		keys := make([]document.Key, len(iids))
		for i, iid := range iids {
			keys[i] = document.BriefKey(typ, iid)
		}
		return r.BatchGet(ctx, document.BriefTable, keys)
	}
	keyOf := func(rec document.Record) (string, bool) {
		if t, _ := rec[document.AttrType].(string); t != typ {
			return "", false
		}
		return StringAttr(document.AttrIID)(rec)
	}
	return Fetch(ctx, iids, get, keyOf)
}
