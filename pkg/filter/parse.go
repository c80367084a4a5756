package filter

import "strings"

// Parse compiles a filter expression. It never fails: blank clauses and clauses
// without a key are skipped, so malformed input yields a shorter (possibly empty)
// list.
//
// Each clause is [+|-]key[:value[,value...]]. Values keep their order and
// duplicates; a key may appear in several clauses.
func Parse(text string) List {
	var result List
	for _, clause := range strings.Split(text, ";") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}

		key, rawValues, hasValues := strings.Cut(clause, ":")
		action := Keep
		switch {
		case strings.HasPrefix(key, "+"):
			key = key[1:]
		case strings.HasPrefix(key, "-"):
			key = key[1:]
			action = Remove
		}
		if key == "" {
			continue
		}

		f := Filter{Key: key, Action: action}
		if hasValues {
			f.Values = strings.Split(rawValues, ",")
		}
		result = append(result, f)
	}
	return result
}
