package predict

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAnswerer struct {
	enabled bool
	pred    Prediction
	err     error
	calls   int
}

func (s *stubAnswerer) Enabled() bool { return s.enabled }

func (s *stubAnswerer) Answer(context.Context, Request) (Prediction, error) {
	s.calls++
	return s.pred, s.err
}

func TestWithFallbackNilHandling(t *testing.T) {
	only := &stubAnswerer{enabled: true}
	assert.Same(t, only, WithFallback(nil, only))
	assert.Same(t, only, WithFallback(only, nil))
}

func TestWithFallbackOrder(t *testing.T) {
	tests := []struct {
		name          string
		primary       *stubAnswerer
		fallback      *stubAnswerer
		answer        string
		err           error
		fallbackCalls int
	}{
		{
			name:     "primary answers",
			primary:  &stubAnswerer{enabled: true, pred: Prediction{Answer: "first"}},
			fallback: &stubAnswerer{enabled: true, pred: Prediction{Answer: "second"}},
			answer:   "first",
		},
		{
			name:          "primary errors",
			primary:       &stubAnswerer{enabled: true, err: errors.New("boom")},
			fallback:      &stubAnswerer{enabled: true, pred: Prediction{Answer: "second"}},
			answer:        "second",
			fallbackCalls: 1,
		},
		{
			name:          "primary empty",
			primary:       &stubAnswerer{enabled: true, pred: Prediction{Answer: "  "}},
			fallback:      &stubAnswerer{enabled: true, pred: Prediction{Answer: "second"}},
			answer:        "second",
			fallbackCalls: 1,
		},
		{
			name:          "primary disabled",
			primary:       &stubAnswerer{},
			fallback:      &stubAnswerer{enabled: true, pred: Prediction{Answer: "second"}},
			answer:        "second",
			fallbackCalls: 1,
		},
		{
			name:     "fallback disabled keeps primary error",
			primary:  &stubAnswerer{enabled: true, pred: Prediction{}},
			fallback: &stubAnswerer{},
			err:      ErrNoAnswer,
		},
		{
			name:     "everything disabled",
			primary:  &stubAnswerer{},
			fallback: &stubAnswerer{},
			err:      ErrDisabled,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			chain := WithFallback(tc.primary, tc.fallback)
			pred, err := chain.Answer(context.Background(), Request{Question: "q"})
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.answer, pred.Answer)
			assert.Equal(t, tc.fallbackCalls, tc.fallback.calls)
		})
	}
}

func TestSnapToOption(t *testing.T) {
	options := []string{"Yes, definitely", "No", "Prefer not to say"}
	tests := []struct {
		answer   string
		expected string
		ok       bool
	}{
		{"NO", "No", true},
		{"yes", "Yes, definitely", true},
		{"prefer not to sya", "Prefer not to say", true},
		{"maybe later", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		got, ok := SnapToOption(tc.answer, options)
		if ok != tc.ok || got != tc.expected {
			t.Fatalf("SnapToOption(%q): expected (%q, %v) got (%q, %v)", tc.answer, tc.expected, tc.ok, got, ok)
		}
	}
}
