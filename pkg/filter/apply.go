package filter

import "slices"

// Match reports whether the record satisfies the clause predicate, ignoring Action.
func (f Filter) Match(record map[string]any) bool {
	resolved := Resolve(record, f.Key)
	if f.Values == nil {
		return resolved.Truthy()
	}
	switch resolved.Kind {
	case Sequence:
		for _, item := range resolved.Items {
			if slices.Contains(f.Values, stringify(item)) {
				return true
			}
		}
		return false
	default:
		return slices.Contains(f.Values, resolved.String())
	}
}

// Accepts reports whether the record survives the clause.
func (f Filter) Accepts(record map[string]any) bool {
	if f.Action == Remove {
		return !f.Match(record)
	}
	return f.Match(record)
}

// Matches reports whether a single record survives every filter in the list.
func Matches(record map[string]any, l List) bool {
	for _, f := range l {
		if !f.Accepts(record) {
			return false
		}
	}
	return true
}

// Apply narrows records through each filter in order. When either argument is
// empty the records are returned as given, nil included. The input slice is
// never modified.
func Apply(records []map[string]any, l List) []map[string]any {
	if len(records) == 0 || len(l) == 0 {
		return records
	}
	filtered := records
	for _, f := range l {
		next := make([]map[string]any, 0, len(filtered))
		for _, record := range filtered {
			if f.Accepts(record) {
				next = append(next, record)
			}
		}
		filtered = next
	}
	return filtered
}
