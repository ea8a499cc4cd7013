package store

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	slugMaxLen       = 64
	slugSearchWindow = 10_000

	// Base used when a title slugifies to nothing.
	slugFallbackBase = "survey"
)

var reNonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// slugify lowercases the title, collapses non-alphanumeric runs to single
// hyphens, trims and caps the result.
func slugify(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = reNonSlug.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > slugMaxLen {
		s = strings.Trim(s[:slugMaxLen], "-")
	}
	if s == "" {
		return slugFallbackBase
	}
	return s
}

// uniqueSlug returns the first free candidate among base, base-2, base-3, …
// within the search window. If every candidate is taken it falls back to a
// high-resolution timestamp suffix, which is unique by construction.
func uniqueSlug(base string, taken func(string) bool) string {
	if !taken(base) {
		return base
	}
	for i := 2; i < slugSearchWindow; i++ {
		if candidate := fmt.Sprintf("%s-%d", base, i); !taken(candidate) {
			return candidate
		}
	}
	return fmt.Sprintf("%s-%d", base, time.Now().UnixNano())
}
