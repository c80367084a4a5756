// Package listselect picks a window of ids from an explicit list or from a
// stored list item, hydrates it through a batch read and applies filters.
package listselect

import (
	"context"
	"errors"
	"strings"

	"github.com/lowfatcats/contentstore/pkg/batch"
	"github.com/lowfatcats/contentstore/pkg/filter"
	"github.com/lowfatcats/contentstore/pkg/observability/logger"
	"github.com/lowfatcats/contentstore/pkg/repository/document"
)

// ErrMissingSource is returned when neither IDs nor List is given.
var ErrMissingSource = errors.New("you must specify list or ids")

// Random is the randomness a Selector needs. *rand.Rand from math/rand/v2
// satisfies it.
type Random interface {
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
}

// Options control one selection.
type Options struct {
	// IDs is a comma-separated id list. It takes precedence over List.
	IDs string
	// List is the ID of a Content item whose Data.<type> holds the ids.
	List   string
	Start  int
	Limit  int
	Random bool
	// Full hydrates Content items instead of Brief items.
	Full   bool
	Filter filter.List
}

// Selector resolves, windows and hydrates id lists.
type Selector struct {
	store document.Reader
	rand  Random
	log   logger.Logger
}

// New creates a Selector.
func New(store document.Reader, rnd Random, log logger.Logger) *Selector {
	if log == nil {
		log = logger.NewNop()
	}
	return &Selector{store: store, rand: rnd, log: log}
}

// Select returns the hydrated, filtered window for typ.
func (s *Selector) Select(ctx context.Context, typ string, opts Options) (document.BatchOutput, error) {
	all, err := s.resolve(ctx, typ, opts)
	if err != nil {
		return document.BatchOutput{}, err
	}

	var ids []string
	if opts.Random {
		ids = Sample(s.rand, all, opts.Limit)
	} else {
		ids = Window(all, opts.Start, opts.Limit)
	}
	s.log.Debug("list window selected", "type", typ, "available", len(all), "selected", len(ids), "random", opts.Random)

	var out document.BatchOutput
	if opts.Full {
		out, err = batch.Content(ctx, s.store, ids)
	} else {
		out, err = batch.Brief(ctx, s.store, typ, StripType(typ, ids))
	}
	if err != nil {
		return document.BatchOutput{}, err
	}

	if len(opts.Filter) > 0 {
		fl := opts.Filter
		if opts.Full {
			fl = fl.Nested(document.AttrData)
		}
		before := len(out.Items)
		out.Items = filter.Apply(out.Items, fl)
		s.log.Debug("filtered list", "type", typ, "before", before, "after", len(out.Items), "filter", fl.String())
	}
	return out, nil
}

func (s *Selector) resolve(ctx context.Context, typ string, opts Options) ([]string, error) {
	switch {
	case opts.IDs != "":
		parts := strings.Split(opts.IDs, ",")
		for i, p := range parts {
			parts[i] = strings.TrimSpace(p)
		}
		return parts, nil
	case opts.List != "":
		rec, err := s.store.GetOne(ctx, document.ContentTable, document.ContentKey(opts.List))
		if err != nil {
			return nil, err
		}
		return filter.Resolve(rec, document.AttrData+"."+typ).Strings(), nil
	default:
		return nil, ErrMissingSource
	}
}

// Window returns ids[start:start+limit] clipped to the available range.
func Window(ids []string, start, limit int) []string {
	start = max(start, 0)
	if limit <= 0 || start >= len(ids) {
		return []string{}
	}
	end := len(ids)
	if limit < end-start {
		end = start + limit
	}
	return append([]string(nil), ids[start:end]...)
}

// Sample returns all ids shuffled when there are at most limit of them,
// otherwise limit distinct positions drawn without replacement.
func Sample(rnd Random, ids []string, limit int) []string {
	out := append([]string(nil), ids...)
	if len(out) <= limit {
		rnd.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		return out
	}
	if limit <= 0 {
		return []string{}
	}
	for i := range limit {
		j := i + rnd.IntN(len(out)-i)
		out[i], out[j] = out[j], out[i]
	}
	return out[:limit]
}

// StripType removes a leading "typ#" from each id.
func StripType(typ string, ids []string) []string {
	prefix := typ + "#"
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strings.TrimPrefix(id, prefix)
	}
	return out
}
