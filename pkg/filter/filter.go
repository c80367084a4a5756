// Package filter implements the post-retrieval filter language used by every read
// operation: a semicolon separated list of clauses that keep or remove records
// based on the value found at a dotted field path.
//
//	animalStatus:Available,Hold;-animalColor:Black;thumb
//
// keeps records whose animalStatus is Available or Hold, removes the black ones
// and keeps only records with a truthy thumb field.
package filter

import (
	"errors"
	"fmt"
	"strings"
)

// Action tells whether matching records are kept or removed.
type Action int

const (
	Keep Action = iota
	Remove
)

func (a Action) String() string {
	if a == Remove {
		return "remove"
	}
	return "keep"
}

// Filter is a single compiled clause. A nil Values slice means the clause tests
// the truthiness of the field instead of membership.
type Filter struct {
	Key    string
	Values []string
	Action Action
}

// List is an ordered set of filters combined with logical AND.
type List []Filter

// String renders the list back into the filter grammar.
func (l List) String() string {
	clauses := make([]string, 0, len(l))
	for _, f := range l {
		var b strings.Builder
		if f.Action == Remove {
			b.WriteByte('-')
		}
		b.WriteString(f.Key)
		if f.Values != nil {
			b.WriteByte(':')
			b.WriteString(strings.Join(f.Values, ","))
		}
		clauses = append(clauses, b.String())
	}
	return strings.Join(clauses, ";")
}

// Nested returns a copy of the list with every key moved one level under prefix.
// The receiver is left untouched.
func (l List) Nested(prefix string) List {
	if len(l) == 0 {
		return l
	}
	out := make(List, len(l))
	for i, f := range l {
		f.Key = prefix + "." + f.Key
		out[i] = f
	}
	return out
}

// ErrRejected classifies records that exist but did not pass the supplied filter.
var ErrRejected = errors.New("rejected by filter")

// RejectedError reports which record was filtered out and by which expression.
type RejectedError struct {
	ID     string
	Filter string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s was rejected by filter %s", e.ID, e.Filter)
}

func (e *RejectedError) Unwrap() error { return ErrRejected }
