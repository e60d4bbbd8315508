// Package watch keeps a target tree under observation and triggers
// rebuilds when Python sources change. Filesystem events are debounced
// so editor save bursts collapse into one build, and an optional
// periodic rescan catches changes the watcher missed.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/cybuild/internal/logfields"
	"git.home.luguber.info/inful/cybuild/internal/pathspec"
	"git.home.luguber.info/inful/cybuild/internal/report"
)

// Builder runs one build pass. Build errors do not stop the watcher;
// the next change simply triggers another attempt.
type Builder interface {
	Build(ctx context.Context) (*report.Report, error)
}

// Watcher triggers rebuilds of a target tree on source changes.
type Watcher struct {
	root      string
	builder   Builder
	matcher   *pathspec.Matcher
	debounce  time.Duration
	rescan    time.Duration
	extension string
	logger    *slog.Logger
}

// New creates a watcher for root.
func New(root string, builder Builder) (*Watcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}
	if builder == nil {
		return nil, fmt.Errorf("watch builder must not be nil")
	}
	return &Watcher{
		root:      absRoot,
		builder:   builder,
		debounce:  2 * time.Second,
		extension: ".py",
		logger:    slog.Default(),
	}, nil
}

// WithDebounce sets the quiet period after the last event before a
// build fires.
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	if d > 0 {
		w.debounce = d
	}
	return w
}

// WithRescanInterval enables a periodic full rebuild; zero disables it.
func (w *Watcher) WithRescanInterval(d time.Duration) *Watcher {
	w.rescan = d
	return w
}

// WithMatcher skips events under excluded directories.
func (w *Watcher) WithMatcher(m *pathspec.Matcher) *Watcher {
	w.matcher = m
	return w
}

// WithLogger sets a custom logger.
func (w *Watcher) WithLogger(logger *slog.Logger) *Watcher {
	if logger != nil {
		w.logger = logger
	}
	return w
}

// Run builds once, then blocks watching for changes until the context
// is canceled. The returned error is nil on a clean shutdown.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.addRecursive(fsw, w.root); err != nil {
		return err
	}

	// Buffered so a pending trigger is never lost while a build runs.
	trigger := make(chan struct{}, 1)
	requestBuild := func() {
		select {
		case trigger <- struct{}{}:
		default:
		}
	}

	var sched gocron.Scheduler
	if w.rescan > 0 {
		sched, err = gocron.NewScheduler()
		if err != nil {
			return fmt.Errorf("create rescan scheduler: %w", err)
		}
		_, err = sched.NewJob(
			gocron.DurationJob(w.rescan),
			gocron.NewTask(func() {
				w.logger.Debug("Periodic rescan triggered")
				requestBuild()
			}),
			gocron.WithName("periodic-rescan"),
		)
		if err != nil {
			return fmt.Errorf("schedule periodic rescan: %w", err)
		}
		sched.Start()
		defer func() {
			if err := sched.Shutdown(); err != nil {
				w.logger.Warn("Rescan scheduler shutdown failed", logfields.Error(err))
			}
		}()
	}

	w.logger.Info("Watch mode started",
		logfields.Target(w.root),
		slog.Duration("debounce", w.debounce),
		slog.Duration("rescan", w.rescan))

	w.runBuild(ctx)

	var debounce *time.Timer
	var debounceC <-chan time.Time
	armDebounce := func() {
		if debounce == nil {
			debounce = time.NewTimer(w.debounce)
			debounceC = debounce.C
			return
		}
		if !debounce.Stop() {
			select {
			case <-debounce.C:
			default:
			}
		}
		debounce.Reset(w.debounce)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Watch mode stopping")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return fmt.Errorf("file watcher closed unexpectedly")
			}
			if !w.relevant(event) {
				continue
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(fsw, event.Name); err != nil {
						w.logger.Warn("Could not watch new directory", logfields.Path(event.Name), logfields.Error(err))
					}
					continue
				}
			}
			w.logger.Debug("Source change detected", logfields.Path(event.Name), slog.String("op", event.Op.String()))
			armDebounce()

		case <-debounceC:
			requestBuild()

		case err, ok := <-fsw.Errors:
			if !ok {
				return fmt.Errorf("file watcher closed unexpectedly")
			}
			w.logger.Warn("File watcher error", logfields.Error(err))

		case <-trigger:
			w.runBuild(ctx)
		}
	}
}

func (w *Watcher) runBuild(ctx context.Context) {
	rpt, err := w.builder.Build(ctx)
	switch {
	case ctx.Err() != nil:
		// Shutdown race, nothing to report.
	case err != nil:
		w.logger.Error("Watch build failed", logfields.Error(err))
	default:
		w.logger.Info("Watch build finished", slog.String("summary", rpt.Summary()))
	}
}

// relevant reports whether an event should count toward a rebuild:
// source files and directory creation, outside excluded subtrees.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)
	if w.matcher.IsExcluded(rel) {
		return false
	}
	if strings.HasSuffix(rel, w.extension) {
		return true
	}
	// Directory events carry no extension; creation may introduce a
	// whole subtree of sources.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			return true
		}
	}
	return false
}

// addRecursive watches dir and every subdirectory that is not excluded.
func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, dir string) error {
	return filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			w.logger.Warn("Skipping unwatchable path", logfields.Path(p), logfields.Error(err))
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(w.root, p)
		if relErr == nil && rel != "." && w.matcher.CanPruneDir(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}
		if err := fsw.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}
