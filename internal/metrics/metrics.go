package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IntentDetections counts classifier calls by result method.
	// Labels: method (rule_based, unknown)
	IntentDetections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autofill",
			Subsystem: "intent",
			Name:      "detections_total",
			Help:      "Total number of intent detections by method",
		},
		[]string{"method"},
	)

	// MemoryLookups counts pattern memory searches.
	// Labels: scope (private, global), result (hit, miss, cached, error)
	MemoryLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autofill",
			Subsystem: "memory",
			Name:      "lookups_total",
			Help:      "Total number of pattern memory lookups",
		},
		[]string{"scope", "result"},
	)

	// LearnedPatterns counts patterns written to memory.
	// Labels: scope (private, global)
	LearnedPatterns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autofill",
			Subsystem: "memory",
			Name:      "learned_patterns_total",
			Help:      "Total number of patterns saved to memory",
		},
		[]string{"scope"},
	)

	// Predictions counts answered predictions by the stage that produced them.
	// Labels: source (memory, rules, ai, none)
	Predictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autofill",
			Subsystem: "predict",
			Name:      "predictions_total",
			Help:      "Total number of predictions by answer source",
		},
		[]string{"source"},
	)

	PredictionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "autofill",
			Subsystem: "predict",
			Name:      "duration_seconds",
			Help:      "Duration of prediction requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
