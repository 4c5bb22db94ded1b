// Package similarity scores how alike two short strings (article titles) are.
package similarity

import (
	"strings"
	"unicode/utf8"
)

const (
	jaccardWeight     = 0.6
	levenshteinWeight = 0.4
	minTokenLen       = 3
)

// Similarity combines word-set Jaccard and character Levenshtein similarity
// into a score in [0,1]. It is meant for titles, not article bodies.
func Similarity(a, b string) float64 {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la == lb {
		return 1
	}
	return jaccardWeight*Jaccard(wordSet(la), wordSet(lb)) + levenshteinWeight*levenshteinRatio(la, lb)
}

// Jaccard returns |a∩b| / |a∪b|, or 0 when either set is empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for w := range small {
		if _, ok := large[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// wordSet splits an already lowercased string on whitespace and keeps
// distinct tokens longer than two characters.
func wordSet(lower string) map[string]struct{} {
	fields := strings.Fields(lower)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) < minTokenLen {
			continue
		}
		set[f] = struct{}{}
	}
	return set
}

// LevenshteinSimilarity is 1 - editDistance / max(len(a), len(b)) on the
// lowercased inputs, and 1 when both are empty.
func LevenshteinSimilarity(a, b string) float64 {
	return levenshteinRatio(strings.ToLower(a), strings.ToLower(b))
}

func levenshteinRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1
	}
	return 1 - float64(EditDistance(ra, rb))/float64(longest)
}

// EditDistance is the Levenshtein distance between two rune slices.
func EditDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
