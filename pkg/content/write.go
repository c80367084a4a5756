package content

import (
	"context"
	"errors"
	"fmt"

	"github.com/lowfatcats/contentstore/pkg/repository/document"
)

// timestampLayout renders UTC instants with millisecond precision, e.g. 2018-02-19T02:35:05.620Z.
const timestampLayout = "2006-01-02T15:04:05.000Z"

func (s *Service) timestamp() string {
	return s.now().UTC().Format(timestampLayout)
}

// Create stores a new Content item with audit fields. It fails with
// document.ErrConditionFailed when the id is taken.
func (s *Service) Create(ctx context.Context, id string, data any, author string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrUsage)
	}
	now := s.timestamp()
	s.log.Debug("Content.CREATE", "id", id)
	return s.store.Put(ctx, document.ContentTable, document.Record{
		document.AttrID:        id,
		document.AttrData:      data,
		document.AttrCreatedAt: now,
		document.AttrCreatedBy: author,
		document.AttrUpdatedAt: now,
		document.AttrUpdatedBy: author,
	}, document.MustNotExist)
}

// Update replaces Data on an existing Content item and refreshes UpdatedAt and
// UpdatedBy. It fails with document.ErrConditionFailed when the id is unknown.
func (s *Service) Update(ctx context.Context, id string, data any, author string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrUsage)
	}
	s.log.Debug("Content.UPDATE", "id", id)
	return s.store.Update(ctx, document.ContentTable, document.ContentKey(id), document.Record{
		document.AttrData:      data,
		document.AttrUpdatedAt: s.timestamp(),
		document.AttrUpdatedBy: author,
	}, document.MustExist)
}

// Put updates the item and creates it when it does not exist yet.
func (s *Service) Put(ctx context.Context, id string, data any, author string) (Status, error) {
	err := s.Update(ctx, id, data, author)
	if err == nil {
		return StatusUpdated, nil
	}
	if !errors.Is(err, document.ErrConditionFailed) {
		return "", err
	}
	if err := s.Create(ctx, id, data, author); err != nil {
		return "", err
	}
	return StatusCreated, nil
}

// PutBrief writes a Brief item as given. Type and IID must be non-empty strings.
func (s *Service) PutBrief(ctx context.Context, item document.Record) error {
	if _, err := document.KeyOf(document.BriefTable, item); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	s.log.Debug("Brief.PUTBRIEF", "type", item[document.AttrType], "iid", item[document.AttrIID])
	return s.store.Put(ctx, document.BriefTable, item, document.Unconditional)
}

// Delete removes a Content item.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.log.Debug("Content.DELETE", "id", id)
	return s.store.Delete(ctx, document.ContentTable, document.ContentKey(id))
}

// DeleteBrief removes a Brief item.
func (s *Service) DeleteBrief(ctx context.Context, typ, iid string) error {
	s.log.Debug("Brief.DELETEBRIEF", "type", typ, "iid", iid)
	return s.store.Delete(ctx, document.BriefTable, document.BriefKey(typ, iid))
}
