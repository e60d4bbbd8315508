// Package scan walks a source tree concurrently and produces the
// candidate set of Python files for a build run.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/cybuild/internal/pathspec"
)

// DefaultExtension is the source file extension selected by the scanner.
const DefaultExtension = ".py"

// SourceUnit is one file tracked as an independent item of build work.
// Identity is the slash-separated relative path. Units are immutable
// once created and live only for the duration of a run.
type SourceUnit struct {
	RelPath   string
	AbsPath   string
	SizeBytes int64
	ModTime   time.Time
}

// Warning records a subtree that could not be scanned. The run continues
// without it.
type Warning struct {
	Path string
	Err  error
}

// Result is the outcome of a scan: a deterministically ordered unit list
// plus any partial-scan warnings.
type Result struct {
	Units    []SourceUnit
	Warnings []Warning
}

// Scanner discovers source units under a root directory. Directory
// listings run concurrently across a bounded worker pool; the final unit
// order is made deterministic by sorting, not by thread interleaving.
type Scanner struct {
	root      string
	matcher   *pathspec.Matcher
	workers   int
	extension string
	logger    *slog.Logger
}

// New creates a scanner for root. A nil matcher excludes nothing.
func New(root string, matcher *pathspec.Matcher) *Scanner {
	return &Scanner{
		root:      root,
		matcher:   matcher,
		workers:   runtime.NumCPU(),
		extension: DefaultExtension,
		logger:    slog.Default(),
	}
}

// WithWorkers sets the directory-listing concurrency.
func (s *Scanner) WithWorkers(n int) *Scanner {
	if n > 0 {
		s.workers = n
	}
	return s
}

// WithExtension overrides the selected file extension.
func (s *Scanner) WithExtension(ext string) *Scanner {
	if ext != "" {
		s.extension = ext
	}
	return s
}

// WithLogger sets a custom logger.
func (s *Scanner) WithLogger(logger *slog.Logger) *Scanner {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Scan walks the tree and returns all matching units sorted by relative
// path. A missing or unreadable root is a fatal error; unreadable
// subdirectories are demoted to warnings.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	info, err := os.Stat(s.root)
	if err != nil {
		return nil, fmt.Errorf("scan root %s: %w", s.root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan root %s is not a directory", s.root)
	}

	absRoot, err := filepath.Abs(s.root)
	if err != nil {
		return nil, fmt.Errorf("resolve scan root: %w", err)
	}

	w := &walker{
		scanner: s,
		absRoot: absRoot,
		ctx:     ctx,
		sem:     make(chan struct{}, s.workers),
	}

	w.wg.Add(1)
	w.walk(absRoot, "")
	w.wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(w.units, func(i, j int) bool {
		return w.units[i].RelPath < w.units[j].RelPath
	})

	s.logger.Debug("Scan complete",
		slog.Int("units", len(w.units)),
		slog.Int("warnings", len(w.warnings)))

	return &Result{Units: w.units, Warnings: w.warnings}, nil
}

type walker struct {
	scanner *Scanner
	absRoot string
	ctx     context.Context
	sem     chan struct{}
	wg      sync.WaitGroup

	mu       sync.Mutex
	units    []SourceUnit
	warnings []Warning
}

// walk lists one directory and spawns child walks for subdirectories.
// Each invocation owns one wg slot and releases it on return.
func (w *walker) walk(dir, rel string) {
	defer w.wg.Done()

	if w.ctx.Err() != nil {
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		w.addWarning(rel, err)
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		childRel := path.Join(rel, name)
		childAbs := filepath.Join(dir, name)

		if entry.IsDir() {
			// Descend into excluded directories when a negation rule
			// could re-include something below; files are re-checked
			// individually.
			if w.scanner.matcher.CanPruneDir(childRel) {
				continue
			}
			w.wg.Add(1)
			go func() {
				w.sem <- struct{}{}
				defer func() { <-w.sem }()
				w.walk(childAbs, childRel)
			}()
			continue
		}

		// Symlinks are skipped entirely to avoid cycles and surprise
		// escapes from the target tree.
		if entry.Type()&os.ModeSymlink != 0 {
			continue
		}
		if !strings.HasSuffix(name, w.scanner.extension) {
			continue
		}
		if w.scanner.matcher.IsExcluded(childRel) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			w.addWarning(childRel, err)
			continue
		}

		w.addUnit(SourceUnit{
			RelPath:   childRel,
			AbsPath:   childAbs,
			SizeBytes: info.Size(),
			ModTime:   info.ModTime(),
		})
	}
}

func (w *walker) addUnit(u SourceUnit) {
	w.mu.Lock()
	w.units = append(w.units, u)
	w.mu.Unlock()
}

func (w *walker) addWarning(rel string, err error) {
	w.scanner.logger.Warn("Skipping unreadable subtree", slog.String("path", rel), slog.Any("error", err))
	w.mu.Lock()
	w.warnings = append(w.warnings, Warning{Path: rel, Err: err})
	w.mu.Unlock()
}
