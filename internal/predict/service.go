package predict

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"autofill-service/internal/intent"
	"autofill-service/internal/memory"
	"autofill-service/internal/metrics"
	"autofill-service/internal/profile"
	"autofill-service/internal/store"
	"autofill-service/internal/util"
)

// DefaultLearnThreshold is the minimum confidence for learning an answer.
const DefaultLearnThreshold = 0.70

// Memory is the pattern memory used for lookups and learning.
type Memory interface {
	Searcher
	Save(ctx context.Context, p memory.Pattern, email string) (string, error)
}

// ProfileStore loads stored profiles by email.
type ProfileStore interface {
	GetProfile(email string) (*store.UserProfile, error)
}

// Config tunes the prediction pipeline.
type Config struct {
	MemoryConfidence float64
	LearnThreshold   float64
}

// Service runs memory, rules and the optional language model in order.
type Service struct {
	detector *intent.Detector
	memory   Memory
	profiles ProfileStore
	chain    Answerer
	learnAt  float64
}

// NewService wires the prediction chain. mem, profiles and ai may be nil.
func NewService(detector *intent.Detector, mem Memory, profiles ProfileStore, ai Answerer, cfg Config) *Service {
	if detector == nil {
		detector = intent.Default()
	}
	learnAt := cfg.LearnThreshold
	if learnAt <= 0 || learnAt > 1 {
		learnAt = DefaultLearnThreshold
	}
	var chain Answerer = NewRuleAnswerer(detector)
	if ai != nil {
		chain = WithFallback(chain, ai)
	}
	if mem != nil {
		chain = WithFallback(NewMemoryAnswerer(mem, cfg.MemoryConfidence), chain)
	}
	return &Service{
		detector: detector,
		memory:   mem,
		profiles: profiles,
		chain:    chain,
		learnAt:  learnAt,
	}
}

// Predict answers req. A missing answer is not an error: the prediction comes
// back with SourceNone and an empty answer.
func (s *Service) Predict(ctx context.Context, req Request) (Prediction, error) {
	timer := util.StartTimer()
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return Prediction{}, memory.ErrEmptyQuestion
	}
	req.UserEmail = store.NormalizeEmail(req.UserEmail)
	req.Profile = s.resolveProfile(req)

	detection := s.detector.Detect(req.Question)
	metrics.IntentDetections.WithLabelValues(string(detection.Method)).Inc()

	pred, err := s.chain.Answer(ctx, req)
	if err != nil {
		if !errors.Is(err, ErrNoAnswer) && !errors.Is(err, ErrDisabled) {
			logrus.WithError(err).WithField("question", req.Question).Warn("prediction chain failed")
		}
		pred = Prediction{
			Intent:    detection.CanonicalKey,
			Reasoning: "No answer available",
			Source:    SourceNone,
		}
	}
	detectedProtected := s.detector.IsProtected(detection.CanonicalKey)
	switch {
	case detectedProtected:
		// The rule table is authoritative for protected fields.
		pred.Intent = detection.CanonicalKey
	case pred.Intent == "" || pred.Intent == "unknown":
		pred.Intent = "unknown"
		if detection.Matched() {
			pred.Intent = detection.CanonicalKey
		}
	}
	pred.Detection = &detection

	if pred.Answer != "" && len(req.Options) > 0 {
		if option, ok := SnapToOption(pred.Answer, req.Options); ok {
			pred.Answer = option
		} else {
			pred.Confidence = min(pred.Confidence, 0.5)
			pred.Reasoning = strings.TrimSpace(pred.Reasoning + "; answer does not match any option")
		}
	}

	pred.Protected = detectedProtected || s.detector.IsProtected(pred.Intent)
	if pred.Protected && !req.Consent {
		pred.Answer = ""
		pred.Autofill = false
		pred.Reasoning = "Protected field: answer withheld without consent"
	} else {
		pred.Autofill = pred.Answer != "" && intent.ShouldAutofill(intent.MappingResult{Confidence: pred.Confidence})
	}

	if s.shouldLearn(req, pred) {
		s.learn(ctx, req, &pred)
	}

	metrics.Predictions.WithLabelValues(string(pred.Source)).Inc()
	pred.DurationMs = timer.Observe(metrics.PredictionDuration)

	logrus.WithFields(logrus.Fields{
		"intent":     pred.Intent,
		"source":     pred.Source,
		"confidence": pred.Confidence,
		"autofill":   pred.Autofill,
		"durationMs": pred.DurationMs,
	}).Debug("prediction complete")
	return pred, nil
}

func (s *Service) resolveProfile(req Request) map[string]any {
	if len(req.Profile) > 0 {
		return profile.Unwrap(req.Profile)
	}
	if s.profiles == nil || req.UserEmail == "" {
		return nil
	}
	row, err := s.profiles.GetProfile(req.UserEmail)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logrus.WithError(err).WithField("email", req.UserEmail).Warn("load profile for prediction")
		}
		return nil
	}
	return profile.Unwrap(row.Profile())
}

func (s *Service) shouldLearn(req Request, pred Prediction) bool {
	return s.memory != nil &&
		req.UserEmail != "" &&
		pred.Answer != "" &&
		pred.Source != SourceMemory &&
		pred.Source != SourceNone &&
		pred.Confidence >= s.learnAt
}

func (s *Service) learn(ctx context.Context, req Request, pred *Prediction) {
	canonicalKey := ""
	if _, ok := s.detector.Table().Lookup(pred.Intent); ok {
		canonicalKey = pred.Intent
	}
	pattern := memory.Pattern{
		QuestionPattern: req.Question,
		Intent:          pred.Intent,
		CanonicalKey:    canonicalKey,
		FieldType:       req.FieldType,
		Confidence:      pred.Confidence,
		Source:          string(pred.Source),
		AnswerMappings: []store.AnswerMapping{{
			CanonicalValue: pred.Answer,
			Variants:       []string{pred.Answer},
			ContextOptions: req.Options,
		}},
	}
	id, err := s.memory.Save(ctx, pattern, req.UserEmail)
	if err != nil {
		logrus.WithError(err).WithField("intent", pred.Intent).Warn("learn predicted pattern")
		return
	}
	pred.PatternID = id
	pred.Learned = true
}
