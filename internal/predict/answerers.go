package predict

import (
	"context"
	"fmt"
	"strings"

	"autofill-service/internal/intent"
	"autofill-service/internal/memory"
	"autofill-service/internal/profile"
)

// DefaultMemoryConfidence is reported for answers served from pattern memory.
const DefaultMemoryConfidence = 0.9

// Searcher finds stored patterns for a question.
type Searcher interface {
	Search(ctx context.Context, question, email string) (memory.Match, bool, error)
}

// MemoryAnswerer answers from learned patterns.
type MemoryAnswerer struct {
	searcher   Searcher
	confidence float64
}

func NewMemoryAnswerer(searcher Searcher, confidence float64) *MemoryAnswerer {
	if confidence <= 0 || confidence > 1 {
		confidence = DefaultMemoryConfidence
	}
	return &MemoryAnswerer{searcher: searcher, confidence: confidence}
}

func (m *MemoryAnswerer) Enabled() bool {
	return m != nil && m.searcher != nil
}

func (m *MemoryAnswerer) Answer(ctx context.Context, req Request) (Prediction, error) {
	if !m.Enabled() {
		return Prediction{}, ErrDisabled
	}
	found, ok, err := m.searcher.Search(ctx, req.Question, req.UserEmail)
	if err != nil {
		return Prediction{}, err
	}
	if !ok {
		return Prediction{}, ErrNoAnswer
	}
	answer := storedAnswer(found.Pattern)
	if answer == "" {
		key := found.Pattern.CanonicalKey
		if key == "" {
			key = found.Pattern.Intent
		}
		answer, _ = profile.Lookup(req.Profile, key)
	}
	if answer == "" {
		return Prediction{}, ErrNoAnswer
	}
	return Prediction{
		Answer:     answer,
		Intent:     found.Pattern.Intent,
		Confidence: m.confidence,
		Reasoning:  fmt.Sprintf("Retrieved from pattern memory (%s %s match)", found.Scope, found.Method),
		Source:     SourceMemory,
		PatternID:  found.Pattern.ID,
	}, nil
}

func storedAnswer(p memory.Pattern) string {
	if len(p.AnswerMappings) == 0 {
		return ""
	}
	first := p.AnswerMappings[0]
	for _, variant := range first.Variants {
		if v := strings.TrimSpace(variant); v != "" {
			return v
		}
	}
	return strings.TrimSpace(first.CanonicalValue)
}

// RuleAnswerer answers confident rule detections from the user's profile.
type RuleAnswerer struct {
	detector *intent.Detector
}

func NewRuleAnswerer(detector *intent.Detector) *RuleAnswerer {
	return &RuleAnswerer{detector: detector}
}

func (r *RuleAnswerer) Enabled() bool {
	return r != nil && r.detector != nil
}

func (r *RuleAnswerer) Answer(_ context.Context, req Request) (Prediction, error) {
	if !r.Enabled() {
		return Prediction{}, ErrDisabled
	}
	result := r.detector.Detect(req.Question)
	if !result.Matched() || !r.detector.ShouldAutofill(result) {
		return Prediction{}, ErrNoAnswer
	}
	value, ok := profile.Lookup(req.Profile, result.CanonicalKey)
	if !ok {
		return Prediction{}, ErrNoAnswer
	}
	return Prediction{
		Answer:     value,
		Intent:     result.CanonicalKey,
		Confidence: result.Confidence,
		Reasoning:  strings.Join(result.Evidence, "; "),
		Source:     SourceRules,
	}, nil
}
