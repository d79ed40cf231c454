package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "autofill.db"), true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestUpsertLearnedPatternKeepsIDOnUpdate(t *testing.T) {
	db := openTestDB(t)

	first := &LearnedPattern{
		ID:              "pattern_aaaaaaaaaaaa",
		UserEmail:       " Jane@Example.com ",
		QuestionPattern: "what is your desired salary range",
		Intent:          "application.salaryExpectation",
		Confidence:      0.9,
	}
	first.SetAnswerMappings([]AnswerMapping{{CanonicalValue: "$90,000", Variants: []string{"$90,000"}}})
	created, err := db.UpsertLearnedPattern(first)
	require.NoError(t, err)
	assert.True(t, created)

	second := &LearnedPattern{
		ID:              "pattern_bbbbbbbbbbbb",
		UserEmail:       "jane@example.com",
		QuestionPattern: "what is your desired salary range",
		Intent:          "application.salaryExpectation",
		Confidence:      0.95,
	}
	second.SetAnswerMappings([]AnswerMapping{{CanonicalValue: "$100,000", Variants: []string{"100k"}}})
	created, err = db.UpsertLearnedPattern(second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "pattern_aaaaaaaaaaaa", second.ID)

	rows, err := db.ListLearnedPatterns("JANE@example.com")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 0.95, rows[0].Confidence)
	assert.Equal(t, "$100,000", rows[0].AnswerMappings()[0].CanonicalValue)

	count, err := db.CountLearnedPatterns()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestUpsertLearnedPatternRequiresOwner(t *testing.T) {
	db := openTestDB(t)
	_, err := db.UpsertLearnedPattern(&LearnedPattern{ID: "pattern_x", QuestionPattern: "q"})
	assert.Error(t, err)
}

func TestFindLearnedPatternNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.FindLearnedPattern("nobody@example.com", "anything")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGlobalPatternsUpsertAndBreakdown(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.UpsertGlobalPattern(&GlobalPattern{ID: "global_1", QuestionPattern: "are you willing to relocate", Intent: "application.relocation"}))
	require.NoError(t, db.UpsertGlobalPattern(&GlobalPattern{ID: "global_2", QuestionPattern: "when can you start", Intent: "application.startDate"}))
	require.NoError(t, db.UpsertGlobalPattern(&GlobalPattern{ID: "global_3", QuestionPattern: "earliest start date", Intent: "application.startDate"}))
	// same question, new intent: updated in place
	require.NoError(t, db.UpsertGlobalPattern(&GlobalPattern{ID: "global_4", QuestionPattern: "are you willing to relocate", Intent: "application.relocationPreference"}))

	total, err := db.CountGlobalPatterns()
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)

	breakdown, err := db.GlobalIntentBreakdown()
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{
		"application.relocationPreference": 1,
		"application.startDate":            2,
	}, breakdown)

	row, err := db.FindGlobalPattern("are you willing to relocate")
	require.NoError(t, err)
	assert.Equal(t, "global_1", row.ID)

	require.NoError(t, db.IncrementGlobalUses(row.ID))
	row, err = db.FindGlobalPattern("are you willing to relocate")
	require.NoError(t, err)
	assert.Equal(t, 1, row.Uses)

	rows, err := db.ListGlobalPatterns(time.Time{})
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	rows, err = db.ListGlobalPatterns(time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestProfilesAndFeedback(t *testing.T) {
	db := openTestDB(t)

	created, err := db.EnsureProfile("sam@example.com", map[string]any{"personal": map[string]any{"email": "sam@example.com"}})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = db.EnsureProfile("SAM@example.com", map[string]any{"ignored": true})
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, db.SaveProfile("sam@example.com", map[string]any{"personal": map[string]any{"firstName": "Sam"}}))
	profile, err := db.GetProfile("sam@example.com")
	require.NoError(t, err)
	personal, ok := profile.Profile()["personal"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Sam", personal["firstName"])

	_, err = db.GetProfile("missing@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	users, err := db.CountProfiles(time.Time{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, users)

	recent, err := db.CountProfiles(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, recent)

	fb, err := db.CreateFeedback("sam@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, "click", fb.FeedbackType)
	assert.Len(t, fb.ID, 36)

	count, err := db.CountFeedback(time.Time{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
