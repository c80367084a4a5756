package content

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lowfatcats/contentstore/pkg/repository/document"
)

var fixtureNow = time.Date(2018, 2, 19, 2, 35, 5, 620_000_000, time.UTC)

func fixtureStore(t *testing.T) *document.InMemoryStore {
	t.Helper()
	ctx := context.Background()
	store := document.NewInMemoryStore()

	contents := []document.Record{
		{"ID": "dog#1", "Data": map[string]any{"name": "Rex", "animalStatus": "Available", "tags": []any{"big", "friendly"}}},
		{"ID": "dog#2", "Data": map[string]any{"name": "Fido", "animalStatus": "Adopted", "tags": []any{"small"}}},
		{"ID": "lists", "Data": map[string]any{"dog": []any{"dog#id1", "id2", "dog#id3"}}},
		{"ID": "empty"},
	}
	for _, item := range contents {
		require.NoError(t, store.Put(ctx, document.ContentTable, item, document.Unconditional))
	}

	briefs := []document.Record{
		{"Type": "dog", "IID": "id1", "TS": 1501863044192.0, "FeatureDate": 1502727027330.0, "animalStatus": "Available", "featured": true},
		{"Type": "dog", "IID": "id2", "TS": 1501949438656.0, "animalStatus": "Hold"},
		{"Type": "dog", "IID": "id3", "TS": 1502035838656.0, "FeatureDate": 1502813427330.0, "animalStatus": "Adopted"},
		{"Type": "dog", "IID": "id4", "TS": 1502122238656.0, "FeatureDate": fixtureNow.Add(time.Hour).UnixMilli(), "animalStatus": "Available"},
		{"Type": "cat", "IID": "id1", "TS": 1501863044192.0, "animalStatus": "Available"},
	}
	for _, item := range briefs {
		require.NoError(t, store.Put(ctx, document.BriefTable, item, document.Unconditional))
	}
	return store
}

func newTestService(t *testing.T, store document.Store, opts ...Option) *Service {
	t.Helper()
	base := []Option{
		WithClock(func() time.Time { return fixtureNow }),
		WithRandom(rand.New(rand.NewPCG(42, 7))),
	}
	return NewService(store, DefaultConfig(), append(base, opts...)...)
}

func iidsOf(items []document.Record) []string {
	out := make([]string, len(items))
	for i, item := range items {
		if iid, ok := item["IID"].(string); ok {
			out[i] = iid
			continue
		}
		out[i], _ = item["ID"].(string)
	}
	return out
}
