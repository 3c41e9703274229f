package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/mikey/receipt-forensics/internal/core"
)

func TestObserveStage(t *testing.T) {
	m := NewWithRegisterer(prometheus.NewRegistry())

	m.ObserveStage(core.StageVision, core.StatusSuccess, 250*time.Millisecond)
	m.ObserveStage(core.StageVision, core.StatusFailed, time.Second)
	m.ObserveStage(core.StageReputation, core.StatusSkipped, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageOutcomes.WithLabelValues(core.StageVision, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageOutcomes.WithLabelValues(core.StageVision, "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageOutcomes.WithLabelValues(core.StageReputation, "skipped")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StageDuration))
}

func TestObserveAssessment(t *testing.T) {
	m := NewWithRegisterer(prometheus.NewRegistry())
	m.ObserveAssessment(40, core.TrustAssessment{TrustScore: 62, Verdict: core.VerdictSuspicious})
	m.IncrementProgressDropped()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Verdicts.WithLabelValues("suspicious")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProgressDropped))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveStage(core.StageForensic, core.StatusSuccess, time.Second)
		m.ObserveAssessment(10, core.TrustAssessment{})
		m.IncrementProgressDropped()
	})
}
