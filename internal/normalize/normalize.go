// Package normalize provides the canonical forms used for category title storage and comparison.
package normalize

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Title returns the stored form of a category title: surrounding whitespace
// removed and lower-cased with Unicode case rules.
//
// "  Science FICTION " -> "science fiction"
// "ÉTUDES"            -> "études"
func Title(s string) string {
	// Casers keep state and are not safe for concurrent use, so build one per call.
	return cases.Lower(language.Und).String(strings.TrimSpace(s))
}

// Equal reports whether two titles collide once normalized.
func Equal(a, b string) bool {
	return Title(a) == Title(b)
}
