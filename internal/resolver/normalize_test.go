package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"Работа ":          "работа",
		"  ПОКУПКИ!!":      "покупки",
		"Ёлка":             "елка",
		"café":             "cafe",
		"два   слова":      "два слова",
		"Список дел.":      "список дел",
		"":                 "",
		"   ":              "",
		"Вторник,":         "вторник",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestSimilarityIdentical(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("Покупки", "покупки "))
	assert.Equal(t, 1.0, Similarity("Ёлки", "елки"))
}

func TestSimilarityInflections(t *testing.T) {
	// Different Russian case endings should still score as near-duplicates.
	s := Similarity("Список покупок", "Покупки")
	assert.GreaterOrEqual(t, s, similarityThreshold, "score %f", s)
}

func TestSimilarityUnrelated(t *testing.T) {
	s := Similarity("Покупки", "Работа")
	assert.Less(t, s, similarityThreshold, "score %f", s)
}

func TestSimilarityTypo(t *testing.T) {
	s := Similarity("Покупки", "Пакупки")
	assert.GreaterOrEqual(t, s, similarityThreshold, "score %f", s)
}

func TestTokenizeDropsStopwords(t *testing.T) {
	tokens := tokenize("список для покупок")
	assert.NotContains(t, tokens, "для")
	assert.NotContains(t, tokens, "список")
}
