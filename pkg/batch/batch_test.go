package batch

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"testing"

	"github.com/lowfatcats/contentstore/pkg/repository/document"
)

type fakeBatchStore struct {
	items map[string]document.Record
	calls [][]string
	err   error
}

func (s *fakeBatchStore) get(_ context.Context, keys []string) (document.BatchOutput, error) {
	s.calls = append(s.calls, slices.Clone(keys))
	if s.err != nil {
		return document.BatchOutput{}, s.err
	}
	out := document.BatchOutput{ConsumedCapacity: 1.5, UnprocessedKeys: 1}
	// reverse order to show the result does not depend on store order
	for i := len(keys) - 1; i >= 0; i-- {
		if rec, ok := s.items[keys[i]]; ok {
			out.Items = append(out.Items, rec)
		}
	}
	return out, nil
}

func newFakeBatchStore() *fakeBatchStore {
	return &fakeBatchStore{items: map[string]document.Record{
		"a": {"ID": "a", "Data": map[string]any{"title": "A"}},
		"b": {"ID": "b", "Data": map[string]any{"title": "B"}},
	}}
}

func idsOf(items []document.Record) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item["ID"].(string)
	}
	return out
}

func TestFetch(t *testing.T) {
	tests := []struct {
		name       string
		keys       []string
		want       []string
		wantCalled []string
	}{
		{name: "preserves order", keys: []string{"b", "a"}, want: []string{"b", "a"}, wantCalled: []string{"b", "a"}},
		{name: "duplicates re-expanded", keys: []string{"a", "b", "a"}, want: []string{"a", "b", "a"}, wantCalled: []string{"a", "b"}},
		{name: "misses dropped", keys: []string{"a", "missing"}, want: []string{"a"}, wantCalled: []string{"a", "missing"}},
		{name: "all missing", keys: []string{"x", "y", "x"}, want: []string{}, wantCalled: []string{"x", "y"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeBatchStore()
			out, err := Fetch(context.Background(), tt.keys, store.get, StringAttr("ID"))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := idsOf(out.Items); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("items = %v, want %v", got, tt.want)
			}
			if len(store.calls) != 1 || !reflect.DeepEqual(store.calls[0], tt.wantCalled) {
				t.Fatalf("store calls = %v, want one call with %v", store.calls, tt.wantCalled)
			}
			if out.ConsumedCapacity != 1.5 || out.UnprocessedKeys != 1 {
				t.Fatalf("metadata not surfaced: %+v", out)
			}
		})
	}
}

func TestFetch_DuplicatesShareRecord(t *testing.T) {
	store := newFakeBatchStore()
	out, err := Fetch(context.Background(), []string{"a", "b", "a"}, store.get, StringAttr("ID"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reflect.ValueOf(out.Items[0]).Pointer() != reflect.ValueOf(out.Items[2]).Pointer() {
		t.Fatal("duplicate keys should resolve to the same record")
	}
}

func TestFetch_EmptyKeysSkipsStore(t *testing.T) {
	store := newFakeBatchStore()
	for _, keys := range [][]string{nil, {}} {
		out, err := Fetch(context.Background(), keys, store.get, StringAttr("ID"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Items == nil || len(out.Items) != 0 {
			t.Fatalf("expected empty non-nil items, got %#v", out.Items)
		}
	}
	if len(store.calls) != 0 {
		t.Fatalf("store called %d times", len(store.calls))
	}
}

func TestFetch_ErrorPassesThrough(t *testing.T) {
	store := newFakeBatchStore()
	store.err = errors.New("ValidationException")
	_, err := Fetch(context.Background(), []string{"a"}, store.get, StringAttr("ID"))
	if !errors.Is(err, store.err) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestFetch_CompositeKeys(t *testing.T) {
	type briefKey struct{ Type, IID string }
	records := []document.Record{
		{"Type": "dog", "IID": "1"},
		{"Type": "cat", "IID": "1"},
	}
	get := func(_ context.Context, keys []briefKey) (document.BatchOutput, error) {
		return document.BatchOutput{Items: records}, nil
	}
	keyOf := func(rec document.Record) (briefKey, bool) {
		return briefKey{rec["Type"].(string), rec["IID"].(string)}, true
	}

	out, err := Fetch(context.Background(), []briefKey{{"cat", "1"}, {"dog", "1"}}, get, keyOf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Items[0]["Type"] != "cat" || out.Items[1]["Type"] != "dog" {
		t.Fatalf("unexpected order %v", out.Items)
	}
}

func TestUnique(t *testing.T) {
	got := Unique([]string{"c", "a", "c", "b", "a"})
	if want := []string{"c", "a", "b"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
