package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// accentStripper removes combining marks after NFD decomposition.
var accentStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// CanonicalString folds a value for equality comparison: lowercase,
// accents stripped, whitespace runs collapsed to single spaces. "Automática"
// and "automatica" compare equal; the original casing is what gets stored.
func CanonicalString(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if stripped, _, err := transform.String(accentStripper, s); err == nil {
		s = stripped
	}
	return strings.Join(strings.Fields(s), " ")
}
