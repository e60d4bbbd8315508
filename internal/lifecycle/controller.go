// Package lifecycle drives a build run through its phases: scanning the
// target tree, pruning fresh units against the fingerprint store,
// compiling what remains and reporting the outcome. It also owns the
// clean path and the installed-library build.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/cybuild/internal/artifacts"
	"git.home.luguber.info/inful/cybuild/internal/compiler"
	"git.home.luguber.info/inful/cybuild/internal/config"
	cberrors "git.home.luguber.info/inful/cybuild/internal/errors"
	"git.home.luguber.info/inful/cybuild/internal/fingerprint"
	"git.home.luguber.info/inful/cybuild/internal/history"
	"git.home.luguber.info/inful/cybuild/internal/logfields"
	"git.home.luguber.info/inful/cybuild/internal/metrics"
	"git.home.luguber.info/inful/cybuild/internal/pathspec"
	"git.home.luguber.info/inful/cybuild/internal/report"
	"git.home.luguber.info/inful/cybuild/internal/retry"
	"git.home.luguber.info/inful/cybuild/internal/scan"
	"git.home.luguber.info/inful/cybuild/internal/scheduler"
	"git.home.luguber.info/inful/cybuild/internal/wheel"
	"git.home.luguber.info/inful/cybuild/internal/workspace"
)

// State names the phase a controller is currently in.
type State string

const (
	StateIdle      State = "idle"
	StateScanning  State = "scanning"
	StatePruning   State = "pruning"
	StateBuilding  State = "building"
	StateReporting State = "reporting"
	StateCleaning  State = "cleaning"
	StateDone      State = "done"
	StateFailed    State = "failed"
)

// Controller orchestrates build, clean and library runs for one
// configuration. A controller is reusable; each Build starts a new run
// with a fresh run ID.
type Controller struct {
	cfg      *config.Config
	comp     compiler.Compiler
	recorder metrics.Recorder
	hist     *history.Store
	logger   *slog.Logger
	install  bool
	python   string

	mu    sync.Mutex
	state State
}

// New creates a controller for the given configuration.
func New(cfg *config.Config) *Controller {
	return &Controller{
		cfg:      cfg,
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
		state:    StateIdle,
	}
}

// WithCompiler overrides the compiler. Without an override the
// controller creates a cythonize wrapper from the configuration.
func (c *Controller) WithCompiler(comp compiler.Compiler) *Controller {
	c.comp = comp
	return c
}

// WithRecorder sets a metrics recorder.
func (c *Controller) WithRecorder(r metrics.Recorder) *Controller {
	if r != nil {
		c.recorder = r
	}
	return c
}

// WithHistory enables run recording in the given store.
func (c *Controller) WithHistory(h *history.Store) *Controller {
	c.hist = h
	return c
}

// WithLogger sets a custom logger.
func (c *Controller) WithLogger(logger *slog.Logger) *Controller {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// WithInstall makes successful builds finish with a wheel build and
// pip install using the given interpreter.
func (c *Controller) WithInstall(python string) *Controller {
	c.install = true
	c.python = python
	return c
}

// State returns the controller's current phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) transition(to State) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()
	c.logger.Debug("State transition", slog.String("from", string(from)), logfields.State(string(to)))
}

// Build runs a full incremental build of the configured target.
func (c *Controller) Build(ctx context.Context) (*report.Report, error) {
	return c.build(ctx, c.cfg.Target, c.install)
}

// BuildLibrary compiles an installed Python library in place: the
// package source is located through the interpreter, copied into an
// ephemeral workspace, compiled there and reinstalled as a wheel.
func (c *Controller) BuildLibrary(ctx context.Context, name string) (*report.Report, error) {
	srcDir, err := wheel.LocateLibrary(ctx, c.python, name)
	if err != nil {
		c.transition(StateFailed)
		return nil, cberrors.Wrap(err, cberrors.CategoryConfig, cberrors.SeverityFatal, "locate library")
	}
	c.logger.Info("Located installed library", logfields.Module(name), logfields.Path(srcDir))

	ws := workspace.NewManager("")
	if err := ws.Create(); err != nil {
		c.transition(StateFailed)
		return nil, cberrors.Wrap(err, cberrors.CategoryRuntime, cberrors.SeverityFatal, "create workspace")
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			c.logger.Warn("Workspace cleanup failed", logfields.Error(err))
		}
	}()

	copyRoot, err := ws.CopyTree(srcDir, name)
	if err != nil {
		c.transition(StateFailed)
		return nil, cberrors.Wrap(err, cberrors.CategoryRuntime, cberrors.SeverityFatal, "copy library source")
	}

	// A copied tree never matches the fingerprint store, so force is
	// implied and the install step is what makes the run useful.
	return c.build(ctx, copyRoot, true)
}

func (c *Controller) build(ctx context.Context, root string, install bool) (*report.Report, error) {
	runID := uuid.NewString()
	runStart := time.Now()

	absRoot, err := filepath.Abs(root)
	if err != nil {
		c.transition(StateFailed)
		return nil, cberrors.Wrap(err, cberrors.CategoryConfig, cberrors.SeverityFatal, "resolve target root")
	}
	if info, err := os.Stat(absRoot); err != nil || !info.IsDir() {
		c.transition(StateFailed)
		if err == nil {
			err = fmt.Errorf("%s is not a directory", absRoot)
		}
		return nil, cberrors.Wrap(err, cberrors.CategoryConfig, cberrors.SeverityFatal, "target root")
	}

	comp := c.comp
	if comp == nil {
		comp = compiler.NewCythonize(c.cfg.Build.CompilerPath).WithLogger(c.logger)
	}
	toolchain, err := comp.Version(ctx)
	if err != nil {
		c.transition(StateFailed)
		return nil, cberrors.Wrap(err, cberrors.CategoryCompile, cberrors.SeverityFatal, "compiler unavailable")
	}

	rpt := report.New(runID, absRoot, toolchain)
	c.logger.Info("Build run starting",
		logfields.RunID(runID), logfields.Target(absRoot), logfields.Toolchain(toolchain))

	if c.hist != nil {
		if err := c.hist.StartRun(ctx, runID, absRoot, toolchain, runStart); err != nil {
			c.logger.Warn("Could not record run start", logfields.Error(err))
		}
	}

	c.transition(StateScanning)
	scanStart := time.Now()

	patterns, err := pathspec.LoadPatterns(absRoot, pathspec.LoadOptions{
		File:           c.cfg.Exclusion.File,
		MergeGitignore: c.cfg.MergeGitignore(),
		Extra:          c.cfg.Exclusion.Extra,
	})
	if err != nil {
		return c.fail(ctx, rpt, cberrors.Wrap(err, cberrors.CategoryPattern, cberrors.SeverityFatal, "load exclusion patterns"))
	}
	matcher, err := pathspec.Compile(patterns)
	if err != nil {
		return c.fail(ctx, rpt, cberrors.Wrap(err, cberrors.CategoryPattern, cberrors.SeverityFatal, "compile exclusion patterns"))
	}

	scanResult, err := scan.New(absRoot, matcher).
		WithWorkers(c.cfg.Build.Jobs).
		WithLogger(c.logger).
		Scan(ctx)
	if err != nil {
		return c.fail(ctx, rpt, cberrors.Wrap(err, cberrors.CategoryScan, cberrors.SeverityFatal, "scan target"))
	}
	for _, w := range scanResult.Warnings {
		rpt.AddScanWarning(fmt.Sprintf("%s: %v", w.Path, w.Err))
	}
	c.recorder.ObservePhaseDuration("scan", time.Since(scanStart))
	c.logger.Info("Scan complete",
		logfields.RunID(runID),
		slog.Int("units", len(scanResult.Units)),
		slog.Int("warnings", len(scanResult.Warnings)))

	outputDir := c.cfg.Output.Directory
	if !filepath.IsAbs(outputDir) {
		outputDir = filepath.Join(absRoot, outputDir)
	}
	if c.cfg.Output.Fresh {
		if err := os.RemoveAll(outputDir); err != nil {
			return c.fail(ctx, rpt, cberrors.Wrap(err, cberrors.CategoryRuntime, cberrors.SeverityFatal, "remove output directory"))
		}
	}

	cachePath := c.cfg.Cache.Path
	if !filepath.IsAbs(cachePath) {
		cachePath = filepath.Join(absRoot, cachePath)
	}
	store := fingerprint.Load(cachePath, toolchain).WithLogger(c.logger)
	defer func() {
		if err := store.Flush(); err != nil {
			c.logger.Error("Fingerprint store flush failed", logfields.Path(cachePath), logfields.Error(err))
		}
	}()

	c.transition(StatePruning)
	c.transition(StateBuilding)
	buildStart := time.Now()

	sched := scheduler.New(store, comp, scheduler.Options{
		Workers:    c.cfg.Build.Jobs,
		StagingDir: outputDir,
		BuildDir:   filepath.Join(outputDir, "build"),
		Force:      c.cfg.Build.Force,
	}).
		WithRetryPolicy(retry.FromConfig(c.cfg.Build)).
		WithRecorder(c.recorder).
		WithLogger(c.logger)

	submitErr := sched.Submit(ctx, scanResult.Units, rpt)
	if submitErr != nil {
		rpt.MarkCanceled()
	}
	c.recorder.ObservePhaseDuration("build", time.Since(buildStart))

	c.transition(StateReporting)
	rpt.Finish()
	outcome := rpt.Outcome()
	c.recorder.ObserveRunDuration(rpt.Duration())
	c.recorder.IncRunOutcome(string(outcome))
	c.recordHistory(ctx, rpt)

	c.logger.Info("Build run finished",
		logfields.RunID(runID),
		slog.String("outcome", string(outcome)),
		logfields.DurationMS(float64(rpt.Duration().Milliseconds())),
		slog.String("summary", rpt.Summary()))

	if submitErr != nil {
		c.transition(StateFailed)
		return rpt, submitErr
	}

	if outcome == report.OutcomeFailed {
		c.transition(StateFailed)
		return rpt, cberrors.New(cberrors.CategoryCompile, cberrors.SeverityError, "no source file compiled successfully")
	}

	if install && (outcome == report.OutcomeSuccess || outcome == report.OutcomeNoop) {
		if err := c.installTree(ctx, absRoot); err != nil {
			c.transition(StateFailed)
			return rpt, err
		}
	}

	c.transition(StateDone)
	return rpt, nil
}

// fail finalizes a run that died before any unit was attempted.
func (c *Controller) fail(ctx context.Context, rpt *report.Report, err *cberrors.BuildError) (*report.Report, error) {
	rpt.Finish()
	c.recorder.IncRunOutcome(string(report.OutcomeFailed))
	if c.hist != nil {
		if herr := c.hist.FinishRun(ctx, rpt.RunID, string(report.OutcomeFailed), time.Now(), 0, 0, 0, 0); herr != nil {
			c.logger.Warn("Could not record run failure", logfields.Error(herr))
		}
	}
	c.transition(StateFailed)
	return rpt, err
}

func (c *Controller) recordHistory(ctx context.Context, rpt *report.Report) {
	if c.hist == nil {
		return
	}
	for _, p := range rpt.Succeeded() {
		if err := c.hist.RecordUnit(ctx, rpt.RunID, p, "succeeded", ""); err != nil {
			c.logger.Warn("Could not record unit outcome", logfields.Error(err))
			break
		}
	}
	for _, f := range rpt.Failures() {
		status := "failed"
		detail := f.Detail.Diagnostics
		if f.MissingModule != "" {
			status = "missing_module"
			detail = f.MissingModule
		}
		if err := c.hist.RecordUnit(ctx, rpt.RunID, f.Path, status, detail); err != nil {
			c.logger.Warn("Could not record unit outcome", logfields.Error(err))
			break
		}
	}
	succeeded, failed, missing, skipped := rpt.Counts()
	if err := c.hist.FinishRun(ctx, rpt.RunID, string(rpt.Outcome()), time.Now(), succeeded, failed, missing, skipped); err != nil {
		c.logger.Warn("Could not record run finish", logfields.Error(err))
	}
}

func (c *Controller) installTree(ctx context.Context, root string) error {
	builder, err := wheel.NewBuilder(c.python)
	if err != nil {
		return cberrors.Wrap(err, cberrors.CategoryRuntime, cberrors.SeverityFatal, "wheel builder")
	}
	wheelPath, err := builder.WithLogger(c.logger).Build(ctx, root)
	if err != nil {
		return cberrors.Wrap(err, cberrors.CategoryRuntime, cberrors.SeverityError, "build wheel")
	}
	installer, err := wheel.NewInstaller(c.python)
	if err != nil {
		return cberrors.Wrap(err, cberrors.CategoryRuntime, cberrors.SeverityFatal, "wheel installer")
	}
	if err := installer.WithLogger(c.logger).Install(ctx, wheelPath); err != nil {
		return cberrors.Wrap(err, cberrors.CategoryRuntime, cberrors.SeverityError, "install wheel")
	}
	return nil
}

// Clean removes build artifacts from the configured target, keeping
// anything matched by the extra exclusion patterns.
func (c *Controller) Clean(ctx context.Context) ([]string, error) {
	c.transition(StateCleaning)

	absRoot, err := filepath.Abs(c.cfg.Target)
	if err != nil {
		c.transition(StateFailed)
		return nil, cberrors.Wrap(err, cberrors.CategoryConfig, cberrors.SeverityFatal, "resolve target root")
	}

	keep, err := pathspec.Compile(pathspec.ParseLines(c.cfg.Exclusion.Extra))
	if err != nil {
		c.transition(StateFailed)
		return nil, cberrors.Wrap(err, cberrors.CategoryPattern, cberrors.SeverityFatal, "compile keep patterns")
	}

	cachePath := c.cfg.Cache.Path
	if !filepath.IsAbs(cachePath) {
		cachePath = filepath.Join(absRoot, cachePath)
	}

	removed, err := artifacts.NewCleaner(absRoot).
		WithKeep(keep).
		WithOutputDir(c.cfg.Output.Directory).
		WithStorePath(cachePath).
		WithLogger(c.logger).
		Clean(ctx)
	if err != nil {
		c.transition(StateFailed)
		return removed, cberrors.Wrap(err, cberrors.CategoryRuntime, cberrors.SeverityError, "clean target")
	}

	c.transition(StateDone)
	return removed, nil
}
