package predict

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	ErrDisabled = errors.New("answer stage disabled")
	ErrNoAnswer = errors.New("no answer available")
)

// Answerer is one stage of the prediction pipeline.
type Answerer interface {
	Enabled() bool
	Answer(ctx context.Context, req Request) (Prediction, error)
}

type answerChain struct {
	primary  Answerer
	fallback Answerer
}

// WithFallback returns an answerer that first tries the primary stage and falls
// back when the primary is disabled, fails or produces an empty answer.
func WithFallback(primary, fallback Answerer) Answerer {
	if primary == nil {
		return fallback
	}
	if fallback == nil {
		return primary
	}
	return &answerChain{primary: primary, fallback: fallback}
}

func (c *answerChain) Enabled() bool {
	if c == nil {
		return false
	}
	return c.primary.Enabled() || c.fallback.Enabled()
}

func (c *answerChain) Answer(ctx context.Context, req Request) (Prediction, error) {
	if c == nil {
		return Prediction{}, ErrDisabled
	}
	lastErr := ErrDisabled
	if c.primary.Enabled() {
		pred, err := c.primary.Answer(ctx, req)
		if err == nil && strings.TrimSpace(pred.Answer) != "" {
			return pred, nil
		}
		if err == nil {
			err = ErrNoAnswer
		}
		if !errors.Is(err, ErrNoAnswer) && !errors.Is(err, ErrDisabled) {
			logrus.WithError(err).Warn("answer stage failed, trying next stage")
		}
		lastErr = err
	}
	if c.fallback.Enabled() {
		return c.fallback.Answer(ctx, req)
	}
	return Prediction{}, lastErr
}
