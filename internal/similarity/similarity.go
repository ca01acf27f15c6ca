// Package similarity computes a bounded lexical similarity score between two
// text blobs. It is the single shared implementation behind pre-inference
// evidence dedup, cross-evidence atom dedup, and semantic molecule
// clustering. One function, so the thresholds of those callers stay
// comparable.
package similarity

import "strings"

// minTokenLen excludes short stopword-ish tokens ("a", "of", "is").
const minTokenLen = 3

// Score returns a similarity in [0,1] for two text blobs.
//
// Both texts are tokenized to lowercase words longer than 2 characters. The
// score blends the Jaccard overlap of the word sets (weight 0.6) with the
// Jaccard overlap of adjacent-word bigrams (weight 0.4); bigrams are
// order-sensitive, so the blend rewards shared phrasing, not just shared
// vocabulary.
//
// Edge cases: two empty texts score 1.0 (identical nothing); exactly one
// empty text scores 0.0.
func Score(a, b string) float64 {
	wordsA := tokenize(a)
	wordsB := tokenize(b)

	if len(wordsA) == 0 && len(wordsB) == 0 {
		return 1.0
	}
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0.0
	}

	wordJaccard := jaccard(toSet(wordsA), toSet(wordsB))
	bigramJaccard := jaccard(bigrams(wordsA), bigrams(wordsB))

	return 0.6*wordJaccard + 0.4*bigramJaccard
}

// tokenize lowercases the text and splits it into words longer than 2
// characters. Any non-letter, non-digit rune is a separator.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		isLower := r >= 'a' && r <= 'z'
		isDigit := r >= '0' && r <= '9'
		return !isLower && !isDigit
	})

	words := fields[:0]
	for _, f := range fields {
		if len(f) >= minTokenLen {
			words = append(words, f)
		}
	}
	return words
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// bigrams returns the set of adjacent-word pairs, preserving order within
// each pair.
func bigrams(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for i := 0; i+1 < len(words); i++ {
		set[words[i]+" "+words[i+1]] = struct{}{}
	}
	return set
}

// jaccard computes |A∩B| / |A∪B|. Two empty sets score 1.0 so that texts
// with identical (possibly empty) token structure compare as equal.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
