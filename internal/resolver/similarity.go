package resolver

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// Thresholds for the token-overlap tier. Scores at or above autoUseScore
// are trusted without asking; between the two the match is offered as a
// disambiguation candidate.
const (
	similarityThreshold = 0.75
	autoUseScore        = 0.85
)

// stopwords are connective words ignored during tokenization, Russian and
// English both since users mix languages freely.
var stopwords = map[string]struct{}{
	"в": {}, "на": {}, "с": {}, "к": {}, "по": {}, "для": {}, "из": {},
	"и": {}, "а": {}, "но": {}, "не": {}, "же": {}, "бы": {}, "ли": {},
	"список": {}, "списке": {}, "списка": {}, "задача": {}, "задачу": {},
	"the": {}, "a": {}, "an": {}, "of": {}, "in": {}, "on": {}, "for": {},
	"to": {}, "list": {}, "task": {},
}

// suffixes are common Russian inflection endings stripped so that
// "покупки" and "покупок" reduce to the same stem.
var suffixes = []string{
	"иями", "ями", "ами", "ией", "ого", "его", "ому", "ему",
	"ыми", "ими", "ах", "ях", "ов", "ев", "ей", "ий", "ый", "ой",
	"ам", "ям", "ом", "ем", "ум", "ы", "и", "а", "я", "о", "е", "у", "ю", "ь",
}

// tokenize splits a normalized title into stems, dropping stopwords and
// single-letter leftovers.
func tokenize(s string) []string {
	var out []string
	for _, word := range strings.Fields(Normalize(s)) {
		if _, skip := stopwords[word]; skip {
			continue
		}
		stem := stripSuffix(word)
		if len([]rune(stem)) < 2 {
			continue
		}
		out = append(out, stem)
	}
	return out
}

func stripSuffix(word string) string {
	runes := []rune(word)
	if len(runes) <= 3 {
		return word
	}
	for _, suf := range suffixes {
		sufRunes := []rune(suf)
		if len(runes)-len(sufRunes) >= 3 && strings.HasSuffix(word, suf) {
			return string(runes[:len(runes)-len(sufRunes)])
		}
	}
	return word
}

// Similarity scores two titles in [0,1]. Token stems are compared with
// Jaccard overlap; token pairs that do not match exactly still count when
// their edit distance is small relative to length. Equal normalized forms
// short-circuit to 1.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	ta, tb := tokenize(na), tokenize(nb)
	if len(ta) == 0 || len(tb) == 0 {
		return charSimilarity(na, nb)
	}

	matched := make([]bool, len(tb))
	common := 0
	for _, x := range ta {
		for j, y := range tb {
			if matched[j] {
				continue
			}
			if x == y || charSimilarity(x, y) >= 0.8 {
				matched[j] = true
				common++
				break
			}
		}
	}
	union := len(ta) + len(tb) - common
	if union == 0 {
		return 0
	}
	return float64(common) / float64(union)
}

// charSimilarity is a length-normalized edit-distance score.
func charSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len([]rune(a)), len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	score := 1 - float64(dist)/float64(longest)
	if score < 0 {
		return 0
	}
	return score
}
