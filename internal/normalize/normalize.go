// Package normalize canonicalizes user-supplied identifiers.
package normalize

import "strings"

// Email returns the form of an email address used for storage, lookups and
// token claims: surrounding whitespace trimmed and lower-cased.
func Email(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}
