// Package scheduler dispatches build tasks across a bounded worker pool,
// pruning units that are already up to date and collecting per-unit
// outcomes into the run report.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"git.home.luguber.info/inful/cybuild/internal/annotate"
	"git.home.luguber.info/inful/cybuild/internal/compiler"
	"git.home.luguber.info/inful/cybuild/internal/fingerprint"
	"git.home.luguber.info/inful/cybuild/internal/logfields"
	"git.home.luguber.info/inful/cybuild/internal/metrics"
	"git.home.luguber.info/inful/cybuild/internal/report"
	"git.home.luguber.info/inful/cybuild/internal/retry"
	"git.home.luguber.info/inful/cybuild/internal/scan"
)

// Options configures a scheduler run.
type Options struct {
	Workers    int    // Worker pool size; 0 means available hardware parallelism
	StagingDir string // Destination for annotated sources
	BuildDir   string // Intermediate directory handed to the compiler
	Force      bool   // Ignore the fingerprint store, rebuild everything
}

// Scheduler owns the worker pool for the duration of one run.
type Scheduler struct {
	store    *fingerprint.Store
	comp     compiler.Compiler
	opts     Options
	policy   retry.Policy
	recorder metrics.Recorder
	logger   *slog.Logger

	// claimed enforces at-most-one task in flight per path within a run.
	mu      sync.Mutex
	claimed map[string]struct{}
}

// New creates a scheduler. The fingerprint store and compiler are
// required; options with zero values fall back to defaults.
func New(store *fingerprint.Store, comp compiler.Compiler, opts Options) *Scheduler {
	if store == nil {
		panic("scheduler.New: fingerprint store is required")
	}
	if comp == nil {
		panic("scheduler.New: compiler is required")
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Scheduler{
		store:    store,
		comp:     comp,
		opts:     opts,
		policy:   retry.DefaultPolicy(),
		recorder: metrics.NoopRecorder{},
		claimed:  make(map[string]struct{}),
	}
}

// WithRetryPolicy sets the retry policy for transient compile failures.
func (s *Scheduler) WithRetryPolicy(p retry.Policy) *Scheduler {
	s.policy = p
	return s
}

// WithRecorder injects a metrics recorder.
func (s *Scheduler) WithRecorder(r metrics.Recorder) *Scheduler {
	if r != nil {
		s.recorder = r
	}
	return s
}

// WithLogger sets a custom logger.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Submit prunes fresh units, dispatches the stale remainder to the
// worker pool and blocks until every dispatched task finished or the
// context was canceled. Per-unit failures never abort the batch; they
// are recorded in the report and the run continues.
func (s *Scheduler) Submit(ctx context.Context, units []scan.SourceUnit, rep *report.Report) error {
	if s.logger == nil {
		s.logger = slog.Default()
	}

	tasks := s.prune(units, rep)
	if len(tasks) == 0 {
		s.logger.Info("All units up to date, nothing to compile")
		return nil
	}

	s.recorder.SetWorkerCount(s.opts.Workers)
	s.logger.Info("Dispatching build tasks",
		slog.Int("tasks", len(tasks)),
		slog.Int("workers", s.opts.Workers))

	jobs := make(chan *Task)
	var wg sync.WaitGroup
	for i := range s.opts.Workers {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			for task := range jobs {
				s.process(ctx, name, task, rep)
			}
		}(fmt.Sprintf("worker-%d", i))
	}

feed:
	for _, task := range tasks {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- task:
		}
	}
	close(jobs)
	wg.Wait()

	return ctx.Err()
}

// prune partitions the unit list into skip/run and claims each runnable
// path. A unit whose path was already claimed this run is dropped: the
// external compiler is never invoked twice for the same path.
func (s *Scheduler) prune(units []scan.SourceUnit, rep *report.Report) []*Task {
	start := time.Now()
	var tasks []*Task

	for _, unit := range units {
		if !s.claim(unit.RelPath) {
			s.logger.Warn("Duplicate unit dropped", logfields.Path(unit.RelPath))
			continue
		}

		if !s.opts.Force {
			stale, hash, err := s.store.IsStale(unit.RelPath, unit.AbsPath, unit.ModTime)
			if err != nil {
				s.logger.Warn("Staleness check failed, rebuilding", logfields.Path(unit.RelPath), logfields.Error(err))
			}
			if !stale {
				rep.AddSkipped(unit.RelPath)
				s.recorder.IncUnitResult(metrics.UnitSkipped)
				continue
			}
			tasks = append(tasks, &Task{Unit: unit, Status: TaskPending, contentHash: hash})
			continue
		}
		tasks = append(tasks, &Task{Unit: unit, Status: TaskPending})
	}

	s.recorder.ObservePhaseDuration("prune", time.Since(start))
	return tasks
}

func (s *Scheduler) claim(relPath string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.claimed[relPath]; taken {
		return false
	}
	s.claimed[relPath] = struct{}{}
	return true
}

// process runs one task to completion: annotate, compile (with retries
// for transient failures), then record the fingerprint on success only.
func (s *Scheduler) process(ctx context.Context, worker string, task *Task, rep *report.Report) {
	task.Status = TaskRunning
	unit := task.Unit

	staged, err := annotate.WriteAnnotated(unit.AbsPath, unit.RelPath, s.opts.StagingDir)
	if err != nil {
		task.Status = TaskFailed
		rep.AddFailed(unit.RelPath, report.ErrorDetail{Diagnostics: err.Error()})
		s.recorder.IncUnitResult(metrics.UnitFailed)
		s.logger.Error("Annotation failed", logfields.Worker(worker), logfields.Path(unit.RelPath), logfields.Error(err))
		return
	}
	task.AnnotatedPath = staged

	req := compiler.Request{
		SourcePath: staged,
		BuildDir:   s.opts.BuildDir,
	}

	for attempt := 0; ; attempt++ {
		start := time.Now()
		res, err := s.comp.Compile(ctx, req)
		dur := time.Since(start)

		if err != nil {
			// The tool could not be invoked at all. Retrying cannot help.
			task.Status = TaskFailed
			rep.AddFailed(unit.RelPath, report.ErrorDetail{Diagnostics: err.Error()})
			s.recorder.IncUnitResult(metrics.UnitFailed)
			s.recorder.ObserveCompileDuration(dur, false)
			s.logger.Error("Compiler invocation failed", logfields.Worker(worker), logfields.Path(unit.RelPath), logfields.Error(err))
			return
		}

		s.recorder.ObserveCompileDuration(dur, res.Success())

		if res.Success() {
			s.finishSuccess(task, rep)
			return
		}

		if res.MissingModule != "" {
			task.Status = TaskFailed
			rep.AddMissingModule(unit.RelPath, res.MissingModule, report.ErrorDetail{
				Diagnostics: res.Diagnostics(),
				ExitCode:    res.ExitCode,
			})
			s.recorder.IncUnitResult(metrics.UnitMissingModule)
			s.logger.Warn("Unresolved import",
				logfields.Worker(worker),
				logfields.Path(unit.RelPath),
				logfields.Module(res.MissingModule))
			return
		}

		if attempt < s.policy.MaxRetries && ctx.Err() == nil {
			delay := s.policy.Delay(attempt + 1)
			s.recorder.IncRetry()
			s.logger.Warn("Compile failed, retrying",
				logfields.Worker(worker),
				logfields.Path(unit.RelPath),
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay))
			select {
			case <-ctx.Done():
			case <-time.After(delay):
				continue
			}
		}

		task.Status = TaskFailed
		rep.AddFailed(unit.RelPath, report.ErrorDetail{
			Diagnostics: res.Diagnostics(),
			ExitCode:    res.ExitCode,
		})
		s.recorder.IncUnitResult(metrics.UnitFailed)
		s.logger.Error("Compile failed",
			logfields.Worker(worker),
			logfields.Path(unit.RelPath),
			slog.Int("exit_code", res.ExitCode))
		return
	}
}

func (s *Scheduler) finishSuccess(task *Task, rep *report.Report) {
	unit := task.Unit

	hash := task.contentHash
	if hash == "" {
		var err error
		hash, err = fingerprint.HashFile(unit.AbsPath)
		if err != nil {
			// The compile succeeded but the source vanished underneath
			// us. Leave no record so the unit rebuilds next run.
			s.logger.Warn("Hashing after compile failed, fingerprint not recorded", logfields.Path(unit.RelPath), logfields.Error(err))
			task.Status = TaskSucceeded
			rep.AddSucceeded(unit.RelPath, task.AnnotatedPath)
			s.recorder.IncUnitResult(metrics.UnitSucceeded)
			return
		}
	}

	s.store.Record(unit.RelPath, hash, task.AnnotatedPath, unit.ModTime)
	task.Status = TaskSucceeded
	rep.AddSucceeded(unit.RelPath, task.AnnotatedPath)
	s.recorder.IncUnitResult(metrics.UnitSucceeded)
}
