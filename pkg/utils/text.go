package utils

import "strings"

// Truncate returns s truncated to maxLen bytes, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// KeywordOverlap returns the number of distinct lowercase words that appear in
// both a and b. Used by the retrieval fallback gate.
func KeywordOverlap(a, b string) int {
	seen := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(a)) {
		seen[w] = true
	}
	n := 0
	counted := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(b)) {
		if seen[w] && !counted[w] {
			counted[w] = true
			n++
		}
	}
	return n
}
