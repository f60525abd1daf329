// Package slug derives URL- and storage-safe identifiers from display names.
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Make returns a lowercase, hyphen-separated ASCII slug: diacritics are
// stripped and every run of characters outside [a-z0-9] becomes one '-'.
// The result may be empty.
func Make(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	dash := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// Base is Make with a fallback for names that reduce to nothing.
func Base(s, fallback string) string {
	if v := Make(s); v != "" {
		return v
	}
	return Make(fallback)
}

// Valid reports whether s is already a well-formed slug.
func Valid(s string) bool {
	return s != "" && Make(s) == s
}
