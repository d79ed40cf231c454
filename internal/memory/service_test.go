package memory

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autofill-service/internal/store"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(evt Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *eventRecorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Type)
	}
	return out
}

func newTestService(t *testing.T, opts Options) (*Service, *store.Database) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "memory.db"), true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewService(db, opts), db
}

func salaryPattern(answer string) Pattern {
	return Pattern{
		QuestionPattern: "What is your desired salary?",
		Intent:          "application.salaryExpectation",
		CanonicalKey:    "application.salaryExpectation",
		Confidence:      0.9,
		Source:          "AI",
		AnswerMappings: []store.AnswerMapping{{
			CanonicalValue: answer,
			Variants:       []string{answer},
		}},
	}
}

func TestSaveRequiresEmail(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	_, err := svc.Save(context.Background(), salaryPattern("$100k"), "  ")
	assert.ErrorIs(t, err, ErrEmailRequired)

	_, err = svc.Save(context.Background(), Pattern{QuestionPattern: "?!", Intent: "x"}, "a@example.com")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestSaveIsDeterministicAndUpdatesInPlace(t *testing.T) {
	svc, db := newTestService(t, Options{})
	ctx := context.Background()

	id, err := svc.Save(ctx, salaryPattern("$100k"), "Alex@Example.com")
	require.NoError(t, err)
	assert.Equal(t, PatternID("alex@example.com", "what is your desired salary", "application.salaryExpectation"), id)
	assert.True(t, strings.HasPrefix(id, "pattern_"))
	assert.Len(t, id, len("pattern_")+12)

	again, err := svc.Save(ctx, salaryPattern("$120k"), "alex@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	retagged := salaryPattern("$130k")
	retagged.Intent = "application.compensation"
	third, err := svc.Save(ctx, retagged, "alex@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, third)

	patterns, err := svc.UserPatterns("alex@example.com")
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "application.compensation", patterns[0].Intent)
	assert.Equal(t, "$130k", patterns[0].AnswerMappings[0].CanonicalValue)

	profile, err := db.GetProfile("alex@example.com")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"personal": map[string]any{"email": "alex@example.com"}}, profile.Profile())
}

func TestSaveKeepsExistingProfile(t *testing.T) {
	svc, db := newTestService(t, Options{})
	require.NoError(t, db.SaveProfile("kim@example.com", map[string]any{"personal": map[string]any{"firstName": "Kim"}}))

	_, err := svc.Save(context.Background(), salaryPattern("$90k"), "kim@example.com")
	require.NoError(t, err)

	profile, err := db.GetProfile("kim@example.com")
	require.NoError(t, err)
	personal := profile.Profile()["personal"].(map[string]any)
	assert.Equal(t, "Kim", personal["firstName"])
}

func TestSearchPrivateBeatsGlobal(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()

	n, err := svc.ImportGlobal(ctx, strings.NewReader("question,intent\nWhat is your notice period?,application.noticePeriod\n"))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	private := Pattern{QuestionPattern: "what is your notice period", Intent: "custom.notice", Confidence: 0.9}
	_, err = svc.Save(ctx, private, "lee@example.com")
	require.NoError(t, err)

	found, ok, err := svc.Search(ctx, "What is your notice period?", "lee@example.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ScopePrivate, found.Scope)
	assert.Equal(t, MatchExact, found.Method)
	assert.Equal(t, "custom.notice", found.Pattern.Intent)

	found, ok, err = svc.Search(ctx, "What is your notice period?", "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ScopeGlobal, found.Scope)
	assert.Equal(t, "application.noticePeriod", found.Pattern.Intent)

	found, ok, err = svc.Search(ctx, "What is your notice period?", "other@example.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ScopeGlobal, found.Scope)
}

func TestSearchExactBeatsFuzzy(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()

	csv := "when can you start working,application.startDate\nwhen can you start,application.availability\n"
	_, err := svc.ImportGlobal(ctx, strings.NewReader(csv))
	require.NoError(t, err)

	found, ok, err := svc.Search(ctx, "When can you start?", "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, MatchExact, found.Method)
	assert.Equal(t, "application.availability", found.Pattern.Intent)
	assert.Equal(t, 1.0, found.Similarity)

	found, ok, err = svc.Search(ctx, "When could you start working", "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, MatchFuzzy, found.Method)
	assert.Equal(t, "application.startDate", found.Pattern.Intent)
	assert.InDelta(t, 0.8, found.Similarity, 1e-9)

	_, ok, err = svc.Search(ctx, "Describe your favourite project", "")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = svc.Search(ctx, "  ", "")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestSearchCacheResetOnImport(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()

	_, ok, err := svc.Search(ctx, "Are you willing to relocate?", "")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = svc.ImportGlobal(ctx, strings.NewReader("are you willing to relocate,application.relocation\n"))
	require.NoError(t, err)

	found, ok, err := svc.Search(ctx, "Are you willing to relocate?", "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "application.relocation", found.Pattern.Intent)
}

func TestSavePromotesShareableIntents(t *testing.T) {
	recorder := &eventRecorder{}
	svc, _ := newTestService(t, Options{
		ShareableIntents: []string{"application.noticePeriod", "eeo.gender"},
		OnChange:         recorder.record,
	})
	ctx := context.Background()

	notice := Pattern{
		QuestionPattern: "How long is your notice period?",
		Intent:          "application.noticePeriod",
		Confidence:      0.85,
		AnswerMappings:  []store.AnswerMapping{{CanonicalValue: "2 weeks", Variants: []string{"2 weeks"}}},
	}
	_, err := svc.Save(ctx, notice, "pat@example.com")
	require.NoError(t, err)

	gender := Pattern{
		QuestionPattern: "What is your gender?",
		Intent:          "eeo.gender",
		Confidence:      0.95,
		AnswerMappings:  []store.AnswerMapping{{CanonicalValue: "Decline", Variants: []string{"Decline"}}},
	}
	_, err = svc.Save(ctx, gender, "pat@example.com")
	require.NoError(t, err)

	assert.False(t, svc.Shareable("eeo.gender"))
	assert.True(t, svc.Shareable("application.noticePeriod"))
	assert.False(t, svc.Shareable("personal.email"))

	globals, err := svc.GlobalPatterns(time.Time{})
	require.NoError(t, err)
	require.Len(t, globals, 1)
	assert.Equal(t, "how long is your notice period", globals[0].QuestionPattern)
	assert.Empty(t, globals[0].AnswerMappings)

	assert.Equal(t, []EventType{EventLearned, EventPromoted, EventLearned}, recorder.types())

	stats, err := svc.Stats()
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.GlobalPatterns)
	assert.EqualValues(t, 2, stats.PrivatePatterns)
	assert.Equal(t, map[string]int64{"application.noticePeriod": 1}, stats.Intents)
}

func TestImportGlobalSkipsHeaderBlankAndProtected(t *testing.T) {
	recorder := &eventRecorder{}
	svc, _ := newTestService(t, Options{OnChange: recorder.record})

	csv := strings.Join([]string{
		"question,intent,canonical_key",
		"",
		"What is your gender?,eeo.gender",
		"Earliest start date,application.startDate,application.startDate",
		"Only one column",
		"Expected salary,application.salaryExpectation",
	}, "\n")
	n, err := svc.ImportGlobal(context.Background(), strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	globals, err := svc.GlobalPatterns(time.Time{})
	require.NoError(t, err)
	require.Len(t, globals, 2)
	byQuestion := make(map[string]Pattern, len(globals))
	for _, p := range globals {
		byQuestion[p.QuestionPattern] = p
	}
	start, ok := byQuestion["earliest start date"]
	require.True(t, ok)
	assert.Equal(t, "application.startDate", start.CanonicalKey)
	assert.Equal(t, "import", start.Source)
	assert.Contains(t, byQuestion, "expected salary")

	assert.Equal(t, []EventType{EventImported}, recorder.types())
}

func TestImportGlobalCSVMissingFile(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	_, err := svc.ImportGlobalCSV(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)

	_, err = svc.ImportGlobalCSV(context.Background(), " ")
	assert.Error(t, err)
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisCacheRoundTripAndReset(t *testing.T) {
	mr, client := setupRedis(t)
	cache := NewRedisCacheWithClient(client, time.Minute)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	entry := Lookup{Found: true, Match: Match{Scope: ScopeGlobal, Method: MatchFuzzy, Similarity: 0.8, Pattern: Pattern{ID: "global_1", Intent: "application.startDate"}}}
	require.NoError(t, cache.Set(ctx, "when can you start", entry))
	require.NoError(t, cache.Set(ctx, "negative", Lookup{}))
	require.NoError(t, mr.Set("unrelated", "keep"))

	got, ok, err := cache.Get(ctx, "when can you start")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "application.startDate", got.Match.Pattern.Intent)
	assert.Equal(t, MatchFuzzy, got.Match.Method)

	ttl := mr.TTL(redisKeyPrefix + "when can you start")
	assert.Equal(t, time.Minute, ttl)

	require.NoError(t, cache.Reset(ctx))
	_, ok, err = cache.Get(ctx, "when can you start")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, mr.Exists("unrelated"))
}

func TestServiceWithRedisCache(t *testing.T) {
	_, client := setupRedis(t)
	svc, _ := newTestService(t, Options{Cache: NewRedisCacheWithClient(client, time.Minute)})
	ctx := context.Background()

	_, err := svc.ImportGlobal(ctx, strings.NewReader("what is your notice period,application.noticePeriod\n"))
	require.NoError(t, err)

	first, ok, err := svc.Search(ctx, "What is your notice period?", "")
	require.NoError(t, err)
	require.True(t, ok)

	second, ok, err := svc.Search(ctx, "What is your notice period?", "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.Pattern.ID, second.Pattern.ID)
	assert.Equal(t, first.Scope, second.Scope)
}
