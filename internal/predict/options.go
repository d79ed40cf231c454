package predict

import (
	"math"
	"strings"

	"autofill-service/internal/match"
)

const minOptionSimilarity = 0.6

// SnapToOption maps an answer onto one of the offered options: case-insensitive
// equality first, then whole-word containment, then the closest option by
// edit distance.
func SnapToOption(answer string, options []string) (string, bool) {
	target := match.NormalizeQuestion(answer)
	if target == "" || len(options) == 0 {
		return "", false
	}
	normalized := make([]string, len(options))
	for i, option := range options {
		normalized[i] = match.NormalizeQuestion(option)
	}

	for i, candidate := range normalized {
		if candidate == target {
			return options[i], true
		}
	}
	for i, candidate := range normalized {
		if candidate == "" {
			continue
		}
		if containsWords(candidate, target) || containsWords(target, candidate) {
			return options[i], true
		}
	}

	best, bestScore := "", 0.0
	for i, candidate := range normalized {
		score := similarity(target, candidate)
		if score > bestScore {
			best, bestScore = options[i], score
		}
	}
	if bestScore >= minOptionSimilarity {
		return best, true
	}
	return "", false
}

func containsWords(text, phrase string) bool {
	return strings.Contains(" "+text+" ", " "+phrase+" ")
}

func similarity(a, b string) float64 {
	aRunes := []rune(a)
	bRunes := []rune(b)
	if len(aRunes) == 0 && len(bRunes) == 0 {
		return 1
	}
	if len(aRunes) == 0 || len(bRunes) == 0 {
		return 0
	}
	dist := levenshtein(aRunes, bRunes)
	maxLen := math.Max(float64(len(aRunes)), float64(len(bRunes)))
	return clamp(1-float64(dist)/maxLen, 0, 1)
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for c := range prev {
		prev[c] = c
	}
	for r := 1; r <= len(a); r++ {
		curr[0] = r
		for c := 1; c <= len(b); c++ {
			cost := 1
			if a[r-1] == b[c-1] {
				cost = 0
			}
			curr[c] = min(prev[c]+1, curr[c-1]+1, prev[c-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func clamp(value, lo, hi float64) float64 {
	if math.IsNaN(value) {
		return lo
	}
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
