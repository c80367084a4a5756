// Package document defines the backing-store contract shared by the Content and
// Brief record families. The DynamoDB and MongoDB executors live with their
// adapters under pkg/store; InMemoryStore serves tests and the memory backend.
package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Record is a read-only snapshot of a stored item. Nested values are
// map[string]any and []any.
type Record = map[string]any

// Key is the natural key of an item: {"ID": id} or {"Type": t, "IID": iid}.
type Key = map[string]any

// Cursor is the opaque continuation key returned with a page. Empty means the
// traversal is complete.
type Cursor map[string]any

// Done reports whether no further pages exist.
func (c Cursor) Done() bool { return len(c) == 0 }

// Table names one of the two record families. Executors add the configured prefix.
type Table string

const (
	ContentTable Table = "Content"
	BriefTable   Table = "Brief"
)

// Index selects the ordered access path of a Brief query.
type Index string

const (
	// IndexNone queries the base table ordered by IID.
	IndexNone         Index = ""
	IndexTypeTS       Index = "TypeTS"
	IndexTypeFeatured Index = "TypeFeatured"
)

// Attribute names.
const (
	AttrID          = "ID"
	AttrData        = "Data"
	AttrCreatedAt   = "CreatedAt"
	AttrCreatedBy   = "CreatedBy"
	AttrUpdatedAt   = "UpdatedAt"
	AttrUpdatedBy   = "UpdatedBy"
	AttrType        = "Type"
	AttrIID         = "IID"
	AttrTS          = "TS"
	AttrFeatureDate = "FeatureDate"
)

// SortAttribute returns the attribute an index orders by.
func (i Index) SortAttribute() string {
	switch i {
	case IndexTypeTS:
		return AttrTS
	case IndexTypeFeatured:
		return AttrFeatureDate
	default:
		return AttrIID
	}
}

// KeyAttributes lists the attributes forming the primary key of the table.
func (t Table) KeyAttributes() []string {
	if t == BriefTable {
		return []string{AttrType, AttrIID}
	}
	return []string{AttrID}
}

// KeyOf extracts the primary key of rec. Key attributes must be non-empty strings.
func KeyOf(table Table, rec Record) (Key, error) {
	key := make(Key, 2)
	for _, attr := range table.KeyAttributes() {
		v, ok := rec[attr].(string)
		if !ok || v == "" {
			return nil, fmt.Errorf("%w: %s requires a non-empty string %s", ErrInvalidKey, table, attr)
		}
		key[attr] = v
	}
	return key, nil
}

// KeyString renders a key as a single string: the ID for Content, Type#IID for Brief.
func KeyString(table Table, key Key) (string, error) {
	k, err := KeyOf(table, key)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, 2)
	for _, attr := range table.KeyAttributes() {
		parts = append(parts, k[attr].(string))
	}
	return strings.Join(parts, "#"), nil
}

// ContentKey builds the key of a Content item.
func ContentKey(id string) Key { return Key{AttrID: id} }

// BriefKey builds the key of a Brief item.
func BriefKey(typ, iid string) Key { return Key{AttrType: typ, AttrIID: iid} }

// PageStats mirrors what the store reports for a single page.
type PageStats struct {
	Count            int
	ScannedCount     int
	ConsumedCapacity float64
}

// Page is one response of a paginated scan or query.
type Page struct {
	Items []Record
	Next  Cursor
	Stats PageStats
}

// BatchOutput is the result of a batch read. UnprocessedKeys counts keys the
// store did not get to; they are reported, never retried.
type BatchOutput struct {
	Items            []Record
	ConsumedCapacity float64
	UnprocessedKeys  int
}

// KeyRange bounds the sort attribute of an index query. Both bounds are inclusive.
type KeyRange struct {
	Min *int64
	Max *int64
}

// ScanInput describes one page of an unordered full-table traversal.
type ScanInput struct {
	Table    Table
	PageSize int32
	Cursor   Cursor
}

// QueryInput describes one page of an ordered query within a Brief type partition.
type QueryInput struct {
	Partition string
	Index     Index
	Range     KeyRange
	// Prefix restricts IID to a prefix; only valid with IndexNone.
	Prefix    string
	PageSize  int32
	Ascending bool
	Cursor    Cursor
}

// Condition guards a write.
type Condition int

const (
	Unconditional Condition = iota
	MustNotExist
	MustExist
)

// ErrConditionFailed classifies conditional writes rejected by the store.
// The backend error stays reachable through errors.As.
var ErrConditionFailed = errors.New("document condition failed")

// ErrInvalidKey is returned for keys or items missing a key attribute.
var ErrInvalidKey = errors.New("invalid document key")

// Reader provides the read primitives the retrieval engine is built on.
type Reader interface {
	// GetOne returns nil, nil when the item does not exist.
	GetOne(ctx context.Context, table Table, key Key) (Record, error)
	// BatchGet expects unique keys. Misses are omitted and order is unspecified.
	BatchGet(ctx context.Context, table Table, keys []Key) (BatchOutput, error)
	Scan(ctx context.Context, in ScanInput) (Page, error)
	Query(ctx context.Context, in QueryInput) (Page, error)
}

// Writer provides single-item writes.
type Writer interface {
	Put(ctx context.Context, table Table, item Record, cond Condition) error
	// Update sets the given top-level attributes on an existing or new item.
	Update(ctx context.Context, table Table, key Key, set Record, cond Condition) error
	Delete(ctx context.Context, table Table, key Key) error
}

// Store combines Reader and Writer.
type Store interface {
	Reader
	Writer
}
