package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopRecorderIsSafe(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObservePhaseDuration("scan", time.Second)
	r.ObserveRunDuration(time.Second)
	r.IncUnitResult(UnitSucceeded)
	r.IncRunOutcome("success")
	r.ObserveCompileDuration(time.Second, true)
	r.SetWorkerCount(4)
	r.IncRetry()
}

func TestPrometheusRecorderRegistersAndCounts(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.ObservePhaseDuration("scan", 100*time.Millisecond)
	pr.ObserveRunDuration(time.Second)
	pr.IncUnitResult(UnitSucceeded)
	pr.IncUnitResult(UnitFailed)
	pr.IncRunOutcome("partial")
	pr.ObserveCompileDuration(time.Second, true)
	pr.ObserveCompileDuration(time.Second, false)
	pr.SetWorkerCount(8)
	pr.IncRetry()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"cybuild_phase_duration_seconds",
		"cybuild_run_duration_seconds",
		"cybuild_unit_results_total",
		"cybuild_run_outcomes_total",
		"cybuild_compile_duration_seconds",
		"cybuild_worker_count",
		"cybuild_compile_retries_total",
	} {
		assert.True(t, names[want], "missing metric family %s", want)
	}
}

func TestPrometheusRecorderNilSafe(t *testing.T) {
	var pr *PrometheusRecorder
	pr.ObservePhaseDuration("scan", time.Second)
	pr.IncUnitResult(UnitSkipped)
	pr.SetWorkerCount(1)
	pr.IncRetry()
}
