package memory

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"autofill-service/internal/intent"
	"autofill-service/internal/match"
	"autofill-service/internal/metrics"
	"autofill-service/internal/store"
)

var (
	ErrEmailRequired = errors.New("email is required to save a pattern")
	ErrEmptyQuestion = errors.New("question is empty")
)

// DefaultFuzzyThreshold is the minimum word overlap for a fuzzy global match.
const DefaultFuzzyThreshold = 0.8

// Scope says which memory a match came from.
type Scope string

const (
	ScopePrivate Scope = "private"
	ScopeGlobal  Scope = "global"
)

// MatchMethod says how a stored question matched.
type MatchMethod string

const (
	MatchExact MatchMethod = "exact"
	MatchFuzzy MatchMethod = "fuzzy"
)

// Pattern is a learned question mapping as exchanged with clients.
type Pattern struct {
	ID              string                `json:"id,omitempty"`
	QuestionPattern string                `json:"questionPattern"`
	Intent          string                `json:"intent"`
	CanonicalKey    string                `json:"canonicalKey,omitempty"`
	FieldType       string                `json:"fieldType,omitempty"`
	Confidence      float64               `json:"confidence"`
	Source          string                `json:"source,omitempty"`
	AnswerMappings  []store.AnswerMapping `json:"answerMappings"`
	CreatedAt       time.Time             `json:"createdAt"`
	LastUsed        time.Time             `json:"lastUsed"`
}

// Match is a successful memory search.
type Match struct {
	Pattern    Pattern     `json:"pattern"`
	Scope      Scope       `json:"scope"`
	Method     MatchMethod `json:"method"`
	Similarity float64     `json:"similarity"`
}

// Stats summarises the stored patterns.
type Stats struct {
	GlobalPatterns  int64            `json:"globalPatterns"`
	PrivatePatterns int64            `json:"privatePatterns"`
	Intents         map[string]int64 `json:"intents"`
}

// EventType names a memory change.
type EventType string

const (
	EventLearned  EventType = "learned"
	EventPromoted EventType = "promoted"
	EventImported EventType = "imported"
)

// Event describes a change to pattern memory.
type Event struct {
	Type     EventType `json:"type"`
	ID       string    `json:"id,omitempty"`
	Intent   string    `json:"intent,omitempty"`
	Question string    `json:"question,omitempty"`
	Scope    Scope     `json:"scope"`
	Count    int       `json:"count,omitempty"`
	At       time.Time `json:"at"`
}

// Options tune a Service. Zero values fall back to defaults.
type Options struct {
	FuzzyThreshold   float64
	ShareableIntents []string
	IsProtected      func(intent string) bool
	Cache            Cache
	OnChange         func(Event)
}

// Service implements private and global pattern memory on top of the store.
type Service struct {
	db          *store.Database
	threshold   float64
	shareable   map[string]struct{}
	isProtected func(string) bool
	cache       Cache
	onChange    func(Event)
}

func NewService(db *store.Database, opts Options) *Service {
	threshold := opts.FuzzyThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultFuzzyThreshold
	}
	shareable := make(map[string]struct{}, len(opts.ShareableIntents))
	for _, name := range opts.ShareableIntents {
		name = strings.TrimSpace(name)
		if name != "" {
			shareable[name] = struct{}{}
		}
	}
	isProtected := opts.IsProtected
	if isProtected == nil {
		isProtected = intent.IsProtectedField
	}
	cache := opts.Cache
	if cache == nil {
		cache = NewLocalCache(DefaultLocalCacheSize, DefaultCacheTTL)
	}
	return &Service{
		db:          db,
		threshold:   threshold,
		shareable:   shareable,
		isProtected: isProtected,
		cache:       cache,
		onChange:    opts.OnChange,
	}
}

// PatternID is the deterministic id of a private pattern.
func PatternID(email, question, intentKey string) string {
	sum := md5.Sum([]byte(email + ":" + question + ":" + intentKey))
	return "pattern_" + hex.EncodeToString(sum[:])[:12]
}

func globalID(question string) string {
	sum := md5.Sum([]byte(question))
	return "global_" + hex.EncodeToString(sum[:])[:12]
}

// Shareable reports whether an intent's question mapping may enter global memory.
func (s *Service) Shareable(intentKey string) bool {
	if _, ok := s.shareable[intentKey]; !ok {
		return false
	}
	return !s.isProtected(intentKey)
}

// Search looks the question up in the user's private patterns, then in the
// global patterns (exact, then fuzzy). The bool is false when nothing matched.
func (s *Service) Search(ctx context.Context, question, email string) (Match, bool, error) {
	normalized := match.NormalizeQuestion(question)
	if normalized == "" {
		return Match{}, false, ErrEmptyQuestion
	}

	if email = store.NormalizeEmail(email); email != "" {
		row, err := s.db.FindLearnedPattern(email, normalized)
		switch {
		case err == nil:
			metrics.MemoryLookups.WithLabelValues(string(ScopePrivate), "hit").Inc()
			if err := s.db.TouchLearnedPattern(row.ID); err != nil {
				logrus.WithError(err).WithField("pattern", row.ID).Warn("touch learned pattern")
			}
			return Match{Pattern: fromLearned(row), Scope: ScopePrivate, Method: MatchExact, Similarity: 1}, true, nil
		case errors.Is(err, store.ErrNotFound):
			metrics.MemoryLookups.WithLabelValues(string(ScopePrivate), "miss").Inc()
		default:
			metrics.MemoryLookups.WithLabelValues(string(ScopePrivate), "error").Inc()
			return Match{}, false, fmt.Errorf("search private patterns: %w", err)
		}
	}

	if cached, ok, err := s.cache.Get(ctx, normalized); err != nil {
		logrus.WithError(err).Warn("memory cache get")
	} else if ok {
		metrics.MemoryLookups.WithLabelValues(string(ScopeGlobal), "cached").Inc()
		if cached.Found {
			s.recordGlobalUse(cached.Match.Pattern.ID)
		}
		return cached.Match, cached.Found, nil
	}

	found, ok, err := s.searchGlobal(normalized)
	if err != nil {
		metrics.MemoryLookups.WithLabelValues(string(ScopeGlobal), "error").Inc()
		return Match{}, false, err
	}
	if err := s.cache.Set(ctx, normalized, Lookup{Match: found, Found: ok}); err != nil {
		logrus.WithError(err).Warn("memory cache set")
	}
	if !ok {
		metrics.MemoryLookups.WithLabelValues(string(ScopeGlobal), "miss").Inc()
		return Match{}, false, nil
	}
	metrics.MemoryLookups.WithLabelValues(string(ScopeGlobal), "hit").Inc()
	s.recordGlobalUse(found.Pattern.ID)
	return found, true, nil
}

func (s *Service) searchGlobal(normalized string) (Match, bool, error) {
	row, err := s.db.FindGlobalPattern(normalized)
	if err == nil {
		return Match{Pattern: fromGlobal(row), Scope: ScopeGlobal, Method: MatchExact, Similarity: 1}, true, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return Match{}, false, fmt.Errorf("search global patterns: %w", err)
	}

	rows, err := s.db.ListGlobalPatterns(time.Time{})
	if err != nil {
		return Match{}, false, fmt.Errorf("list global patterns: %w", err)
	}
	for i := range rows {
		sim := match.WordOverlap(normalized, rows[i].QuestionPattern)
		if sim >= s.threshold {
			return Match{Pattern: fromGlobal(&rows[i]), Scope: ScopeGlobal, Method: MatchFuzzy, Similarity: sim}, true, nil
		}
	}
	return Match{}, false, nil
}

func (s *Service) recordGlobalUse(id string) {
	if id == "" {
		return
	}
	if err := s.db.IncrementGlobalUses(id); err != nil {
		logrus.WithError(err).WithField("pattern", id).Warn("increment global pattern uses")
	}
}

// Save stores the pattern privately for email and returns its id. Shareable,
// unprotected intents are also promoted to global memory without answers.
func (s *Service) Save(ctx context.Context, p Pattern, email string) (string, error) {
	email = store.NormalizeEmail(email)
	if email == "" {
		return "", ErrEmailRequired
	}
	question := match.NormalizeQuestion(p.QuestionPattern)
	if question == "" {
		return "", ErrEmptyQuestion
	}
	intentKey := strings.TrimSpace(p.Intent)
	if intentKey == "" {
		intentKey = "unknown"
	}
	source := strings.TrimSpace(p.Source)
	if source == "" {
		source = "manual"
	}

	created, err := s.db.EnsureProfile(email, map[string]any{"personal": map[string]any{"email": email}})
	if err != nil {
		return "", fmt.Errorf("ensure profile: %w", err)
	}
	if created {
		logrus.WithField("email", email).Info("created stub profile for pattern owner")
	}

	row := &store.LearnedPattern{
		ID:              PatternID(email, question, intentKey),
		UserEmail:       email,
		QuestionPattern: question,
		Intent:          intentKey,
		CanonicalKey:    strings.TrimSpace(p.CanonicalKey),
		FieldType:       strings.TrimSpace(p.FieldType),
		Confidence:      p.Confidence,
		Source:          source,
		LastUsed:        time.Now(),
	}
	row.SetAnswerMappings(p.AnswerMappings)
	if _, err := s.db.UpsertLearnedPattern(row); err != nil {
		return "", fmt.Errorf("save learned pattern: %w", err)
	}
	metrics.LearnedPatterns.WithLabelValues(string(ScopePrivate)).Inc()
	logrus.WithFields(logrus.Fields{
		"id":     row.ID,
		"intent": intentKey,
		"source": source,
	}).Debug("saved learned pattern")
	s.emit(Event{Type: EventLearned, ID: row.ID, Intent: intentKey, Question: question, Scope: ScopePrivate})

	if s.Shareable(intentKey) {
		if err := s.promote(ctx, row); err != nil {
			logrus.WithError(err).WithField("intent", intentKey).Warn("promote pattern to global memory")
		}
	}
	return row.ID, nil
}

func (s *Service) promote(ctx context.Context, row *store.LearnedPattern) error {
	global := &store.GlobalPattern{
		ID:              globalID(row.QuestionPattern),
		QuestionPattern: row.QuestionPattern,
		Intent:          row.Intent,
		CanonicalKey:    row.CanonicalKey,
		FieldType:       row.FieldType,
		Confidence:      row.Confidence,
		Source:          row.Source,
	}
	global.SetAnswerMappings(nil)
	if err := s.db.UpsertGlobalPattern(global); err != nil {
		return err
	}
	metrics.LearnedPatterns.WithLabelValues(string(ScopeGlobal)).Inc()
	s.resetCache(ctx)
	s.emit(Event{Type: EventPromoted, ID: global.ID, Intent: global.Intent, Question: global.QuestionPattern, Scope: ScopeGlobal})
	return nil
}

// Stats returns pattern totals and the per-intent breakdown of global memory.
func (s *Service) Stats() (Stats, error) {
	global, err := s.db.CountGlobalPatterns()
	if err != nil {
		return Stats{}, fmt.Errorf("count global patterns: %w", err)
	}
	private, err := s.db.CountLearnedPatterns()
	if err != nil {
		return Stats{}, fmt.Errorf("count learned patterns: %w", err)
	}
	intents, err := s.db.GlobalIntentBreakdown()
	if err != nil {
		return Stats{}, err
	}
	return Stats{GlobalPatterns: global, PrivatePatterns: private, Intents: intents}, nil
}

// UserPatterns lists the private patterns of email.
func (s *Service) UserPatterns(email string) ([]Pattern, error) {
	email = store.NormalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	rows, err := s.db.ListLearnedPatterns(email)
	if err != nil {
		return nil, fmt.Errorf("list learned patterns: %w", err)
	}
	out := make([]Pattern, 0, len(rows))
	for i := range rows {
		out = append(out, fromLearned(&rows[i]))
	}
	return out, nil
}

// GlobalPatterns lists global patterns changed at or after since; a zero since lists all.
func (s *Service) GlobalPatterns(since time.Time) ([]Pattern, error) {
	rows, err := s.db.ListGlobalPatterns(since)
	if err != nil {
		return nil, fmt.Errorf("list global patterns: %w", err)
	}
	out := make([]Pattern, 0, len(rows))
	for i := range rows {
		out = append(out, fromGlobal(&rows[i]))
	}
	return out, nil
}

func (s *Service) resetCache(ctx context.Context) {
	if err := s.cache.Reset(ctx); err != nil {
		logrus.WithError(err).Warn("reset memory cache")
	}
}

func (s *Service) emit(evt Event) {
	if s.onChange == nil {
		return
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	s.onChange(evt)
}

func fromLearned(row *store.LearnedPattern) Pattern {
	return Pattern{
		ID:              row.ID,
		QuestionPattern: row.QuestionPattern,
		Intent:          row.Intent,
		CanonicalKey:    row.CanonicalKey,
		FieldType:       row.FieldType,
		Confidence:      row.Confidence,
		Source:          row.Source,
		AnswerMappings:  nonNilMappings(row.AnswerMappings()),
		CreatedAt:       row.CreatedAt,
		LastUsed:        row.LastUsed,
	}
}

func fromGlobal(row *store.GlobalPattern) Pattern {
	return Pattern{
		ID:              row.ID,
		QuestionPattern: row.QuestionPattern,
		Intent:          row.Intent,
		CanonicalKey:    row.CanonicalKey,
		FieldType:       row.FieldType,
		Confidence:      row.Confidence,
		Source:          row.Source,
		AnswerMappings:  nonNilMappings(row.AnswerMappings()),
		CreatedAt:       row.CreatedAt,
		LastUsed:        row.UpdatedAt,
	}
}

func nonNilMappings(in []store.AnswerMapping) []store.AnswerMapping {
	if in == nil {
		return []store.AnswerMapping{}
	}
	return in
}
