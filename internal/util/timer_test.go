package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	values []float64
}

func (r *recordingObserver) Observe(v float64) {
	r.values = append(r.values, v)
}

func TestZeroTimer(t *testing.T) {
	var timer Timer
	assert.Zero(t, timer.Elapsed())
	assert.Zero(t, timer.ElapsedMs())
	assert.Zero(t, timer.Observe(nil))
}

func TestObserveRecordsSeconds(t *testing.T) {
	timer := Timer{start: time.Now().Add(-1500 * time.Millisecond)}
	obs := &recordingObserver{}

	ms := timer.Observe(obs)
	require.Len(t, obs.values, 1)
	assert.GreaterOrEqual(t, ms, int64(1500))
	assert.GreaterOrEqual(t, obs.values[0], 1.5)
	assert.Less(t, obs.values[0], 60.0)
}
