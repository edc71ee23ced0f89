// Package category provides the default category taxonomy and helpers for seeding it.
package category

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Slug turns a category title into a file-name-safe slug of at most limit
// bytes; limit <= 0 means no limit. Accents are folded, other non-ASCII is
// dropped, and runs of anything else become a single hyphen. Truncation
// happens on a character boundary and never leaves a trailing hyphen.
//
//	"Science Fiction"    -> "science-fiction"
//	"Mystery & Thriller" -> "mystery-thriller"
//	"Café Culture"       -> "cafe-culture"
func Slug(title string, limit int) string {
	var b strings.Builder
	separate := false

	for _, r := range norm.NFKD.String(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r >= 'A' && r <= 'Z':
			r += 'a' - 'A'
		case r > unicode.MaxASCII:
			continue
		default:
			separate = b.Len() > 0
			continue
		}

		need := 1
		if separate {
			need++
		}
		if limit > 0 && b.Len()+need > limit {
			break
		}
		if separate {
			b.WriteByte('-')
			separate = false
		}
		b.WriteRune(r)
	}

	return b.String()
}
