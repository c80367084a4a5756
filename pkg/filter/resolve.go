package filter

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Kind tags the shape of a resolved field.
type Kind int

const (
	Missing Kind = iota
	Scalar
	Sequence
)

// Resolved is the value found at a field path.
type Resolved struct {
	Kind  Kind
	Value any   // set for Scalar
	Items []any // set for Sequence
}

// Resolve walks a dotted path (a.b.0.c, brackets also accepted) through nested
// maps and sequences. A literal top-level key containing dots wins over traversal.
func Resolve(record map[string]any, path string) Resolved {
	if record == nil {
		return Resolved{Kind: Missing}
	}
	if v, ok := record[path]; ok {
		return classify(v)
	}

	var current any = record
	for _, segment := range splitPath(path) {
		next, ok := step(current, segment)
		if !ok {
			return Resolved{Kind: Missing}
		}
		current = next
	}
	return classify(current)
}

func splitPath(path string) []string {
	path = strings.NewReplacer("[", ".", "]", "").Replace(path)
	segments := strings.Split(path, ".")
	out := segments[:0]
	for _, s := range segments {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func step(current any, segment string) (any, bool) {
	switch node := current.(type) {
	case map[string]any:
		v, ok := node[segment]
		return v, ok
	case []any:
		i, err := strconv.Atoi(segment)
		if err != nil || i < 0 || i >= len(node) {
			return nil, false
		}
		return node[i], true
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(current)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(segment).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Slice, reflect.Array:
		i, err := strconv.Atoi(segment)
		if err != nil || i < 0 || i >= rv.Len() {
			return nil, false
		}
		return rv.Index(i).Interface(), true
	}
	return nil, false
}

func classify(v any) Resolved {
	switch value := v.(type) {
	case []any:
		return Resolved{Kind: Sequence, Items: value}
	case []string:
		items := make([]any, len(value))
		for i, s := range value {
			items[i] = s
		}
		return Resolved{Kind: Sequence, Items: items}
	case []byte, string, nil:
		return Resolved{Kind: Scalar, Value: value}
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return Resolved{Kind: Sequence, Items: items}
	}
	return Resolved{Kind: Scalar, Value: v}
}

// Truthy reports whether the resolved value would pass a bare-key clause.
// Zero numbers, empty strings, false, null and missing fields are falsy;
// sequences and maps are always truthy, even when empty.
func (r Resolved) Truthy() bool {
	switch r.Kind {
	case Missing:
		return false
	case Sequence:
		return true
	}
	switch v := r.Value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0 && !math.IsNaN(v)
	case float32:
		return v != 0 && !math.IsNaN(float64(v))
	case int:
		return v != 0
	case int64:
		return v != 0
	case int32:
		return v != 0
	case uint64:
		return v != 0
	}
	rv := reflect.ValueOf(r.Value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

// String renders the resolved value the way the membership test compares it:
// booleans as true/false, integral numbers without a fraction, null and
// undefined for absent values.
func (r Resolved) String() string {
	switch r.Kind {
	case Missing:
		return "undefined"
	case Sequence:
		parts := make([]string, len(r.Items))
		for i, item := range r.Items {
			if item == nil {
				continue
			}
			parts[i] = stringify(item)
		}
		return strings.Join(parts, ",")
	}
	return stringify(r.Value)
}

func stringify(v any) string {
	switch value := v.(type) {
	case nil:
		return "null"
	case string:
		return value
	case []byte:
		return string(value)
	case bool:
		return strconv.FormatBool(value)
	case float64:
		return formatFloat(value)
	case float32:
		return formatFloat(float64(value))
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case map[string]any:
		return "[object Object]"
	case interface{ String() string }:
		return value.String()
	}
	if c := classify(v); c.Kind == Sequence {
		return c.String()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Map, reflect.Struct:
		return "[object Object]"
	}
	return fmt.Sprint(v)
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Strings returns the string form of each element of a sequence, or a single
// element for a scalar. Missing yields nil.
func (r Resolved) Strings() []string {
	switch r.Kind {
	case Sequence:
		out := make([]string, len(r.Items))
		for i, item := range r.Items {
			out[i] = stringify(item)
		}
		return out
	case Scalar:
		if r.Value == nil {
			return nil
		}
		return []string{stringify(r.Value)}
	}
	return nil
}
