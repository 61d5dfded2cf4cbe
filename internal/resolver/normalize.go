package resolver

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldTransformer = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Normalize produces the canonical comparison form of a title: lowercase,
// diacritics folded, ё collapsed to е, whitespace collapsed, trailing
// punctuation stripped. "Работа " and "работа" normalize identically.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if folded, _, err := transform.String(foldTransformer, s); err == nil {
		s = folded
	}
	// NFD splits ё into е + combining breve, which the fold above already
	// collapses; this handles precomposed input on platforms that skip NFD.
	s = strings.ReplaceAll(s, "ё", "е")
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimRight(s, ".,!?;:…")
	return strings.TrimSpace(s)
}
