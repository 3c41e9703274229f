package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mikey/receipt-forensics/internal/core"
)

// Metrics records stage latencies and assessment outcomes. All methods are
// safe on a nil receiver.
type Metrics struct {
	StageDuration     *prometheus.HistogramVec
	StageOutcomes     *prometheus.CounterVec
	Verdicts          *prometheus.CounterVec
	ManipulationScore prometheus.Histogram
	TrustScore        prometheus.Histogram
	ProgressDropped   prometheus.Counter
}

// New registers the metrics on the default registry
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the metrics on reg
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	scoreBuckets := prometheus.LinearBuckets(0, 10, 11)
	return &Metrics{
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "receipt_stage_duration_seconds",
			Help:    "Duration of each analysis stage",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		StageOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "receipt_stage_outcomes_total",
			Help: "Stage outcomes by stage and status",
		}, []string{"stage", "status"}),
		Verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "receipt_verdicts_total",
			Help: "Final trust verdicts",
		}, []string{"verdict"}),
		ManipulationScore: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "receipt_manipulation_score",
			Help:    "Forensic manipulation scores",
			Buckets: scoreBuckets,
		}),
		TrustScore: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "receipt_trust_score",
			Help:    "Final trust scores",
			Buckets: scoreBuckets,
		}),
		ProgressDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "receipt_progress_emit_failures_total",
			Help: "Progress events the sink failed to store",
		}),
	}
}

// ObserveStage implements core.StageObserver
func (m *Metrics) ObserveStage(stage string, status core.StageStatus, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.StageOutcomes.WithLabelValues(stage, string(status)).Inc()
	if status != core.StatusSkipped {
		m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	}
}

// ObserveAssessment implements core.StageObserver
func (m *Metrics) ObserveAssessment(manipulationScore int, a core.TrustAssessment) {
	if m == nil {
		return
	}
	m.Verdicts.WithLabelValues(string(a.Verdict)).Inc()
	m.ManipulationScore.Observe(float64(manipulationScore))
	m.TrustScore.Observe(float64(a.TrustScore))
}

// IncrementProgressDropped records a progress event the sink rejected
func (m *Metrics) IncrementProgressDropped() {
	if m == nil {
		return
	}
	m.ProgressDropped.Inc()
}
