package lexical

import (
	"strings"
	"unicode"
)

// #region stopwords

// stopwords contains common English words excluded from similarity features.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "do": true, "does": true, "did": true,
	"have": true, "has": true, "had": true, "be": true, "been": true,
	"being": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "can": true, "shall": true, "not": true,
	"no": true, "and": true, "or": true, "but": true, "if": true,
	"then": true, "than": true, "so": true, "as": true, "at": true,
	"by": true, "for": true, "from": true, "in": true, "into": true,
	"of": true, "on": true, "to": true, "with": true, "about": true,
	"this": true, "that": true, "these": true, "those": true, "what": true,
	"which": true, "who": true, "how": true, "when": true, "where": true,
	"why": true, "there": true, "their": true, "they": true, "them": true,
	"your": true, "yours": true, "very": true, "just": true, "also": true,
	"only": true, "some": true, "such": true, "more": true, "most": true,
	"other": true, "over": true, "under": true, "between": true, "through": true,
}

// #endregion

// #region tokenize

// Tokens splits text into lowercase tokens with punctuation stripped.
// Order is preserved; empty input yields a nil slice.
func Tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// Filtered returns the stop-word-filtered subsequence of Tokens(text),
// keeping only tokens longer than 3 runes that are not stopwords.
func Filtered(text string) []string {
	var out []string
	for _, tok := range Tokens(text) {
		if len([]rune(tok)) <= 3 || stopwords[tok] {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// #endregion

// #region bigrams

// Bigrams joins consecutive tokens into adjacent-pair features.
// Fewer than 2 tokens yields a nil slice.
func Bigrams(tokens []string) []string {
	if len(tokens) < 2 {
		return nil
	}
	out := make([]string, 0, len(tokens)-1)
	for i := 0; i+1 < len(tokens); i++ {
		out = append(out, tokens[i]+" "+tokens[i+1])
	}
	return out
}

// #endregion

// #region trigrams

// Trigrams returns the set of distinct length-3 character substrings of text.
// Strings shorter than 3 runes yield an empty set.
func Trigrams(text string) map[string]bool {
	runes := []rune(text)
	set := make(map[string]bool)
	for i := 0; i+3 <= len(runes); i++ {
		set[string(runes[i:i+3])] = true
	}
	return set
}

// #endregion

// #region set-helpers

// ToSet converts a token slice to a membership set.
func ToSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

// Jaccard computes |a ∩ b| / |a ∪ b| over two membership sets.
// Returns 0 when the union is empty.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// #endregion
