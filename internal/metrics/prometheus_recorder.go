package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once            sync.Once
	phaseDuration   *prom.HistogramVec
	runDuration     prom.Histogram
	unitResults     *prom.CounterVec
	runOutcome      *prom.CounterVec
	compileDuration *prom.HistogramVec
	workerCount     prom.Gauge
	retries         prom.Counter
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.phaseDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "cybuild",
			Name:      "phase_duration_seconds",
			Help:      "Duration of individual run phases",
			Buckets:   prom.DefBuckets,
		}, []string{"phase"})
		pr.runDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "cybuild",
			Name:      "run_duration_seconds",
			Help:      "Total build run duration",
			Buckets:   prom.DefBuckets,
		})
		pr.unitResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "cybuild",
			Name:      "unit_results_total",
			Help:      "Per-unit outcomes by category",
		}, []string{"result"})
		pr.runOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "cybuild",
			Name:      "run_outcomes_total",
			Help:      "Run outcomes by final status",
		}, []string{"outcome"})
		pr.compileDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "cybuild",
			Name:      "compile_duration_seconds",
			Help:      "Duration of individual compiler invocations",
			Buckets:   prom.DefBuckets,
		}, []string{"result"})
		pr.workerCount = prom.NewGauge(prom.GaugeOpts{
			Namespace: "cybuild",
			Name:      "worker_count",
			Help:      "Configured worker pool size for the current run",
		})
		pr.retries = prom.NewCounter(prom.CounterOpts{
			Namespace: "cybuild",
			Name:      "compile_retries_total",
			Help:      "Total compile retries for transient failures",
		})
		reg.MustRegister(pr.phaseDuration, pr.runDuration, pr.unitResults, pr.runOutcome, pr.compileDuration, pr.workerCount, pr.retries)
	})
	return pr
}

func (p *PrometheusRecorder) ObservePhaseDuration(phase string, d time.Duration) {
	if p == nil || p.phaseDuration == nil {
		return
	}
	p.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncUnitResult(result UnitResult) {
	if p == nil || p.unitResults == nil {
		return
	}
	p.unitResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncRunOutcome(outcome string) {
	if p == nil || p.runOutcome == nil {
		return
	}
	p.runOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) ObserveCompileDuration(d time.Duration, success bool) {
	if p == nil || p.compileDuration == nil {
		return
	}
	label := "failure"
	if success {
		label = "success"
	}
	p.compileDuration.WithLabelValues(label).Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetWorkerCount(n int) {
	if p == nil || p.workerCount == nil {
		return
	}
	p.workerCount.Set(float64(n))
}

func (p *PrometheusRecorder) IncRetry() {
	if p == nil || p.retries == nil {
		return
	}
	p.retries.Inc()
}
