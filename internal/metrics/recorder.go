// Package metrics defines observability hooks for build runs.
// Implementations may forward to Prometheus or stay no-op when metrics
// are not configured.
package metrics

import "time"

// UnitResult enumerates per-unit outcome categories for counters.
type UnitResult string

const (
	UnitSucceeded     UnitResult = "succeeded"
	UnitFailed        UnitResult = "failed"
	UnitMissingModule UnitResult = "missing_module"
	UnitSkipped       UnitResult = "skipped"
)

// Recorder defines observability hooks for run and unit metrics. All
// methods must be cheap and safe for concurrent use; the scheduler calls
// them from worker goroutines.
type Recorder interface {
	ObservePhaseDuration(phase string, d time.Duration)
	ObserveRunDuration(d time.Duration)
	IncUnitResult(result UnitResult)
	IncRunOutcome(outcome string) // outcome: success|partial|failed|canceled
	ObserveCompileDuration(d time.Duration, success bool)
	SetWorkerCount(n int)
	IncRetry()
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObservePhaseDuration(string, time.Duration) {}
func (NoopRecorder) ObserveRunDuration(time.Duration)           {}
func (NoopRecorder) IncUnitResult(UnitResult)                   {}
func (NoopRecorder) IncRunOutcome(string)                       {}
func (NoopRecorder) ObserveCompileDuration(time.Duration, bool) {}
func (NoopRecorder) SetWorkerCount(int)                         {}
func (NoopRecorder) IncRetry()                                  {}
