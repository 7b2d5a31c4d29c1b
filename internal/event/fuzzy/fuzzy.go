// Package fuzzy implements the Service Fuzzy Filter of spec §4.6: a
// subsequence-match ranking over configured service names.
package fuzzy

import (
	"sort"
	"strings"
)

// Filter returns the subset of names matching query as an ordered
// subsequence, sorted by (score ascending, name ascending). An empty or
// all-whitespace query returns every name in its given order.
func Filter(query string, names []string) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		out := make([]string, len(names))
		copy(out, names)
		return out
	}

	needle := strings.ToLower(query)

	type scored struct {
		name  string
		score int
	}
	var matches []scored

	for _, name := range names {
		score, ok := match(needle, strings.ToLower(name))
		if !ok {
			continue
		}
		matches = append(matches, scored{name: name, score: score})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score < matches[j].score
		}
		return matches[i].name < matches[j].name
	})

	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.name
	}
	return out
}

// match walks needle left-to-right over candidate, advancing the candidate
// cursor to the first match at or after the current position for each
// needle character. The score accumulates the gap before each match plus
// the trailing gap after the last match; ok is false if any needle
// character has no remaining match.
func match(needle, candidate string) (score int, ok bool) {
	cursor := 0
	lastMatchEnd := 0

	for _, ch := range needle {
		idx := indexFrom(candidate, ch, cursor)
		if idx < 0 {
			return 0, false
		}
		score += idx - lastMatchEnd
		cursor = idx + 1
		lastMatchEnd = cursor
	}
	score += len(candidate) - lastMatchEnd
	return score, true
}

func indexFrom(s string, ch rune, from int) int {
	for i, c := range s[from:] {
		if c == ch {
			return from + i
		}
	}
	return -1
}
