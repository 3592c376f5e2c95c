// Package aggregate collapses raw search analytics rows into one record per
// (query, normalized destination) pair.
package aggregate

import "strings"

// NormalizeURL strips the fragment and query string from a page URL so
// equivalent destinations share one key. Scheme, host and path are kept
// byte-for-byte; the function never fails and is idempotent.
func NormalizeURL(raw string) string {
	s, _, _ := strings.Cut(raw, "#")
	s, _, _ = strings.Cut(s, "?")
	return s
}
