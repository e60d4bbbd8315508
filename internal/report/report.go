// Package report aggregates per-unit build outcomes for one run.
// Aggregation is order-independent (maps keyed by path) and safe for
// concurrent workers; the report is read once at run end and is not
// persisted across runs.
package report

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrorDetail carries the captured diagnostics for a failed unit.
type ErrorDetail struct {
	Diagnostics string `json:"diagnostics"`
	ExitCode    int    `json:"exit_code"`
}

// Outcome is the final classification of a run.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"  // every attempted unit succeeded
	OutcomePartial  Outcome = "partial"  // some units failed, at least one succeeded
	OutcomeFailed   Outcome = "failed"   // units were attempted, none succeeded
	OutcomeNoop     Outcome = "noop"     // nothing was attempted (all skipped or empty scan)
	OutcomeCanceled Outcome = "canceled" // run aborted before completion
)

// Report is the aggregate result of a build run.
type Report struct {
	RunID     string
	Target    string
	Toolchain string
	StartedAt time.Time

	mu             sync.Mutex
	finishedAt     time.Time
	canceled       bool
	succeeded      map[string]string      // path -> artifact/output note
	failed         map[string]ErrorDetail // generic compile failures
	missingModules map[string]string      // path -> unresolved module identifier
	missingDetails map[string]ErrorDetail
	skipped        map[string]struct{}
	scanWarnings   []string
}

// New creates an empty report for a run.
func New(runID, target, toolchain string) *Report {
	return &Report{
		RunID:          runID,
		Target:         target,
		Toolchain:      toolchain,
		StartedAt:      time.Now(),
		succeeded:      make(map[string]string),
		failed:         make(map[string]ErrorDetail),
		missingModules: make(map[string]string),
		missingDetails: make(map[string]ErrorDetail),
		skipped:        make(map[string]struct{}),
	}
}

// AddSucceeded records a successful compile for path.
func (r *Report) AddSucceeded(path, output string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.succeeded[path] = output
}

// AddFailed records a generic compile failure with diagnostics.
func (r *Report) AddFailed(path string, detail ErrorDetail) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[path] = detail
}

// AddMissingModule records a failure caused by an unresolved import.
// Kept distinct from generic failures so callers can attempt
// installation and retry.
func (r *Report) AddMissingModule(path, module string, detail ErrorDetail) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.missingModules[path] = module
	r.missingDetails[path] = detail
}

// AddSkipped records a unit pruned as up to date.
func (r *Report) AddSkipped(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped[path] = struct{}{}
}

// AddScanWarning records a partial-scan warning.
func (r *Report) AddScanWarning(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scanWarnings = append(r.scanWarnings, msg)
}

// MarkCanceled flags the run as aborted.
func (r *Report) MarkCanceled() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.canceled = true
}

// Finish stamps the completion time.
func (r *Report) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishedAt = time.Now()
}

// Duration returns the run duration (zero until Finish).
func (r *Report) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finishedAt.IsZero() {
		return 0
	}
	return r.finishedAt.Sub(r.StartedAt)
}

// Counts returns the aggregate counters. Missing-module failures count
// as failed but are also reported separately.
func (r *Report) Counts() (succeeded, failed, missing, skipped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.succeeded), len(r.failed), len(r.missingModules), len(r.skipped)
}

// Succeeded returns the sorted list of succeeded paths.
func (r *Report) Succeeded() []string { return r.sortedKeysSucceeded() }

// Skipped returns the sorted list of skipped paths.
func (r *Report) Skipped() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.skipped))
	for p := range r.skipped {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Failures returns every failed path (generic and missing-module) with
// its diagnostics, sorted by path.
func (r *Report) Failures() []Failure {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Failure, 0, len(r.failed)+len(r.missingModules))
	for p, d := range r.failed {
		out = append(out, Failure{Path: p, Detail: d})
	}
	for p, m := range r.missingModules {
		out = append(out, Failure{Path: p, Detail: r.missingDetails[p], MissingModule: m})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Failure is one failed unit with its context.
type Failure struct {
	Path          string
	Detail        ErrorDetail
	MissingModule string // empty for generic failures
}

// MissingModules returns the distinct unresolved module identifiers,
// sorted. The caller can attempt installation before retrying.
func (r *Report) MissingModules() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{})
	for _, m := range r.missingModules {
		seen[m] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// ScanWarnings returns recorded partial-scan warnings.
func (r *Report) ScanWarnings() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.scanWarnings...)
}

// Outcome classifies the run. A run where units were attempted but none
// succeeded is failed; partial success is not fatal.
func (r *Report) Outcome() Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.canceled {
		return OutcomeCanceled
	}
	attempted := len(r.succeeded) + len(r.failed) + len(r.missingModules)
	switch {
	case attempted == 0:
		return OutcomeNoop
	case len(r.succeeded) == 0:
		return OutcomeFailed
	case len(r.failed)+len(r.missingModules) > 0:
		return OutcomePartial
	default:
		return OutcomeSuccess
	}
}

// Summary renders a one-line human summary.
func (r *Report) Summary() string {
	s, f, m, k := r.Counts()
	return fmt.Sprintf("%d succeeded, %d failed, %d missing modules, %d skipped", s, f, m, k)
}

func (r *Report) sortedKeysSucceeded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.succeeded))
	for p := range r.succeeded {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
