package scoring

import (
	"math"

	"github.com/trustmesh/validation-engine/internal/lexical"
)

// #region features

// features caches the per-response lexical feature sets so the N×N pass
// does not re-tokenize on every pair.
type features struct {
	tokens   map[string]bool
	bigrams  map[string]bool
	trigrams map[string]bool
	length   int
}

func extractFeatures(text string) features {
	filtered := lexical.Filtered(text)
	return features{
		tokens:   lexical.ToSet(filtered),
		bigrams:  lexical.ToSet(lexical.Bigrams(filtered)),
		trigrams: lexical.Trigrams(text),
		length:   len(text),
	}
}

// #endregion

// #region matrix

// SimilarityMatrix computes the N×N pairwise similarity matrix over the
// given response texts. Entries are integers in [0,100]; the diagonal is
// 100 by definition. Off-diagonal entries are computed directly from each
// row's perspective (the substring term is asymmetric).
func SimilarityMatrix(texts []string) [][]int {
	n := len(texts)
	feats := make([]features, n)
	for i, t := range texts {
		feats[i] = extractFeatures(t)
	}

	matrix := make([][]int, n)
	for i := range matrix {
		matrix[i] = make([]int, n)
		for j := range matrix[i] {
			if i == j {
				matrix[i][j] = 100
				continue
			}
			matrix[i][j] = pairScore(feats[i], feats[j])
		}
	}
	return matrix
}

// #endregion

// #region pair-score

// pairScore blends four lexical component scores into one [0,100] integer.
func pairScore(a, b features) int {
	jaccard := lexical.Jaccard(a.tokens, b.tokens)
	bigram := lexical.Jaccard(a.bigrams, b.bigrams)
	substring := substringOverlap(a.trigrams, b.trigrams)
	length := lengthRatio(a.length, b.length)

	composite := weightJaccard*jaccard +
		weightBigram*bigram +
		weightSubstring*substring +
		weightLengthRatio*length
	return int(math.Round(composite * 100))
}

// substringOverlap is the fraction of a's length-3 substrings that occur
// anywhere in b. Asymmetric; 0 when a has no trigrams.
func substringOverlap(a, b map[string]bool) float64 {
	if len(a) == 0 {
		return 0
	}
	hit := 0
	for t := range a {
		if b[t] {
			hit++
		}
	}
	return float64(hit) / float64(len(a))
}

// lengthRatio is min/max over raw character lengths, 0 when either is 0.
func lengthRatio(a, b int) float64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a > b {
		a, b = b, a
	}
	return float64(a) / float64(b)
}

// #endregion
