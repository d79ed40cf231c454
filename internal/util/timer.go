package util

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Timer measures how long a prediction or request stage takes.
type Timer struct {
	start time.Time
}

// StartTimer creates a new timer starting at current time.
func StartTimer() Timer {
	return Timer{start: time.Now()}
}

// Elapsed returns the time since start, or zero for an unstarted timer.
func (t Timer) Elapsed() time.Duration {
	if t.start.IsZero() {
		return 0
	}
	return time.Since(t.start)
}

// ElapsedMs returns the elapsed milliseconds since start.
func (t Timer) ElapsedMs() int64 {
	return t.Elapsed().Milliseconds()
}

// Observe records the elapsed time in seconds on o and returns it in
// milliseconds.
func (t Timer) Observe(o prometheus.Observer) int64 {
	elapsed := t.Elapsed()
	if o != nil {
		o.Observe(elapsed.Seconds())
	}
	return elapsed.Milliseconds()
}
