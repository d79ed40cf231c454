package intent

import (
	"fmt"
	"math"
	"sync"

	"autofill-service/internal/match"
)

// Method identifies how a MappingResult was produced.
type Method string

const (
	MethodRuleBased Method = "rule_based"
	MethodUnknown   Method = "unknown"
)

const (
	exactConfidence   = 0.95
	keywordCeiling    = 0.7
	keywordScale      = 0.9
	keywordMinimum    = 0.5
	autofillThreshold = 0.8
)

const noMatchEvidence = "No matching pattern found"

// MappingResult is the outcome of a single detection. CanonicalKey is empty
// when nothing matched.
type MappingResult struct {
	CanonicalKey string   `json:"canonicalKey,omitempty"`
	Confidence   float64  `json:"confidence"`
	Evidence     []string `json:"evidence"`
	Method       Method   `json:"method"`
}

// Matched reports whether the result names a canonical key.
func (r MappingResult) Matched() bool {
	return r.CanonicalKey != ""
}

// Detector maps question text to canonical intents using a rule table. It holds
// no mutable state and is safe for concurrent use.
type Detector struct {
	table *Table
}

// NewDetector wraps the provided table.
func NewDetector(table *Table) *Detector {
	return &Detector{table: table}
}

// Table exposes the rule table backing the detector.
func (d *Detector) Table() *Table {
	if d == nil {
		return nil
	}
	return d.table
}

// Intents lists the intent keys in table order.
func (d *Detector) Intents() []string {
	return d.table.Intents()
}

// Entries returns a copy of the table entries in order.
func (d *Detector) Entries() []Entry {
	return d.table.Entries()
}

// Detect runs the exact pass, then the keyword pass, then falls back to unknown.
func (d *Detector) Detect(text string) MappingResult {
	if d == nil || d.table == nil {
		return unknownResult()
	}
	normalized := match.NormalizeQuestion(text)

	for _, entry := range d.table.entries {
		for _, pattern := range entry.Patterns {
			if pattern.MatchString(normalized) {
				return MappingResult{
					CanonicalKey: entry.Intent,
					Confidence:   exactConfidence,
					Evidence:     []string{fmt.Sprintf("Matched pattern: %s", pattern.Source)},
					Method:       MethodRuleBased,
				}
			}
		}
	}

	for _, entry := range d.table.entries {
		for _, pattern := range entry.Patterns {
			total := len(pattern.Keywords)
			if total == 0 {
				continue
			}
			hits := match.CountPresent(normalized, pattern.Keywords)
			confidence := math.Min(keywordCeiling, float64(hits)/float64(total)*keywordScale)
			if confidence >= keywordMinimum {
				return MappingResult{
					CanonicalKey: entry.Intent,
					Confidence:   confidence,
					Evidence:     []string{fmt.Sprintf("Keyword match: %d/%d keywords", hits, total)},
					Method:       MethodRuleBased,
				}
			}
		}
	}

	return unknownResult()
}

// IsProtected reports whether key names a protected table entry.
func (d *Detector) IsProtected(key string) bool {
	if d == nil {
		return false
	}
	entry, ok := d.table.Lookup(key)
	return ok && entry.IsProtected
}

// ShouldAutofill is the confidence gate for filling a field without review.
func (d *Detector) ShouldAutofill(result MappingResult) bool {
	return ShouldAutofill(result)
}

func unknownResult() MappingResult {
	return MappingResult{
		Confidence: 0,
		Evidence:   []string{noMatchEvidence},
		Method:     MethodUnknown,
	}
}

var (
	defaultOnce     sync.Once
	defaultDetector *Detector
)

// Default returns the detector over the embedded rule table.
func Default() *Detector {
	defaultOnce.Do(func() {
		defaultDetector = NewDetector(DefaultTable())
	})
	return defaultDetector
}

// DetectIntent classifies text against the embedded rule table.
func DetectIntent(text string) MappingResult {
	return Default().Detect(text)
}

// IsProtectedField reports whether key is a protected intent in the embedded table.
func IsProtectedField(key string) bool {
	return Default().IsProtected(key)
}

// ShouldAutofill reports whether the result is confident enough to autofill.
func ShouldAutofill(result MappingResult) bool {
	return result.Confidence >= autofillThreshold
}
