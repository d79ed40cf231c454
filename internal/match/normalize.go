package match

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	regexEscapes = regexp.MustCompile(`\\[a-zA-Z]`)
	alphaRun     = regexp.MustCompile(`[a-z]+`)
)

// NormalizeQuestion lowercases the question, strips punctuation and collapses
// whitespace. Hyphens survive only between two word characters.
func NormalizeQuestion(input string) string {
	lower := strings.ToLower(strings.TrimSpace(input))
	if lower == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-':
			b.WriteRune(r)
		case r == '\'' || r == '’':
			// what's -> whats
		default:
			b.WriteRune(' ')
		}
	}

	fields := strings.Fields(b.String())
	out := fields[:0]
	for _, field := range fields {
		if word := joinHyphenated(field); word != "" {
			out = append(out, word)
		}
	}
	return strings.Join(out, " ")
}

// joinHyphenated drops leading, trailing and repeated hyphens from a single
// whitespace-free field.
func joinHyphenated(field string) string {
	parts := strings.FieldsFunc(field, func(r rune) bool { return r == '-' })
	return strings.Join(parts, "-")
}

// PatternKeywords extracts the literal keywords of a regular expression source:
// lowercase alphabetic runs longer than two characters. Escape sequences such
// as \b and \s are removed first so they do not glue onto neighbouring words.
func PatternKeywords(source string) []string {
	cleaned := regexEscapes.ReplaceAllString(source, " ")
	cleaned = strings.ToLower(cleaned)

	var keywords []string
	for _, token := range alphaRun.FindAllString(cleaned, -1) {
		if len(token) <= 2 {
			continue
		}
		keywords = appendUnique(keywords, token)
	}
	return keywords
}

// CountPresent reports how many keywords occur as substrings of text.
func CountPresent(text string, keywords []string) int {
	count := 0
	for _, keyword := range keywords {
		if keyword != "" && strings.Contains(text, keyword) {
			count++
		}
	}
	return count
}

// WordOverlap returns |A∩B| / max(|A|,|B|) over the word sets of a and b.
func WordOverlap(a, b string) float64 {
	aWords := wordSet(a)
	bWords := wordSet(b)
	if len(aWords) == 0 || len(bWords) == 0 {
		return 0
	}
	shared := 0
	for word := range aWords {
		if _, ok := bWords[word]; ok {
			shared++
		}
	}
	denominator := len(aWords)
	if len(bWords) > denominator {
		denominator = len(bWords)
	}
	return float64(shared) / float64(denominator)
}

func wordSet(text string) map[string]struct{} {
	fields := strings.Fields(text)
	set := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		set[field] = struct{}{}
	}
	return set
}

func appendUnique(s []string, v string) []string {
	if v == "" {
		return s
	}
	for _, existing := range s {
		if existing == v {
			return s
		}
	}
	return append(s, v)
}
