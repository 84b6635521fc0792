// Package strings provides list normalization used by request models.
package strings

import (
	"strings"
)

// Dedupe trims every element, drops empties and duplicates after applying fold,
// and preserves first-seen order. fold may be nil.
func Dedupe(values []string, fold func(string) string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if fold != nil {
			v = fold(v)
		}
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Tags normalizes contact tags: lowercased, trimmed, unique.
func Tags(values []string) []string {
	return Dedupe(values, strings.ToLower)
}

// Origins normalizes allowed web form origins: no trailing slash, lowercased.
func Origins(values []string) []string {
	return Dedupe(values, func(s string) string {
		return strings.ToLower(strings.TrimRight(s, "/"))
	})
}
