// Package metrics exposes prometheus collectors for the sampling pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gating decisions recorded on TicksTotal.
const (
	DecisionBootstrap = "bootstrap"
	DecisionMotion    = "motion"
	DecisionSkipped   = "skipped"
	DecisionBusy      = "busy"
	DecisionThrottled = "throttled"
	DecisionNoFrame   = "capture_error"
)

// Analysis outcomes recorded on AnalysesTotal.
const (
	OutcomeNormal    = "normal"
	OutcomeAbnormal  = "abnormal"
	OutcomeTransport = "transport_error"
	OutcomeMalformed = "malformed_response"
	OutcomeError     = "error"
	OutcomeStale     = "stale"
)

var (
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "motionwatch_ticks_total",
		Help: "Sampling ticks, by gating decision",
	}, []string{"decision"})

	MotionScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "motionwatch_motion_score",
		Help:    "Motion score between consecutive sampled frames",
		Buckets: []float64{1, 2, 5, 10, 15, 20, 30, 50, 100, 200, 765},
	})

	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "motionwatch_analyses_total",
		Help: "Completed analyzer calls, by outcome",
	}, []string{"outcome"})

	AnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "motionwatch_analysis_duration_seconds",
		Help:    "Latency of analyzer calls",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
	})

	AnalysesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "motionwatch_analyses_in_flight",
		Help: "Analyzer calls currently pending",
	})

	FindingsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "motionwatch_findings_total",
		Help: "Abnormal findings recorded",
	})

	ArchiveDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "motionwatch_archive_dropped_total",
		Help: "Findings not archived because the archive queue was full",
	})
)
