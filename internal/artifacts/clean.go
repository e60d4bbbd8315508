// Package artifacts knows which files a build run leaves behind: native
// extension modules, staged sources and intermediate build directories.
// It can enumerate them and remove them, and it never touches anything
// it does not recognize.
package artifacts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/cybuild/internal/logfields"
	"git.home.luguber.info/inful/cybuild/internal/pathspec"
)

// Extensions of files recognized as build artifacts.
var ArtifactExtensions = []string{".so", ".pyd", ".pyx", ".c"}

// Directory names recognized as intermediate build output.
var ArtifactDirs = []string{"build", "cython_cache", "__pycache__"}

// Cleaner removes build artifacts under a root directory. Paths matched
// by the keep matcher survive; the root itself is never removed, and
// unrecognized files are never deleted regardless of location.
type Cleaner struct {
	root      string
	keep      *pathspec.Matcher
	extraDirs []string // additional directory names to treat as artifacts (e.g. the output dir)
	storePath string   // fingerprint store file to drop alongside artifacts
	logger    *slog.Logger
}

// NewCleaner creates a cleaner for root.
func NewCleaner(root string) *Cleaner {
	return &Cleaner{root: root, logger: slog.Default()}
}

// WithKeep installs an allow-list: any path matching survives cleaning.
func (c *Cleaner) WithKeep(keep *pathspec.Matcher) *Cleaner {
	c.keep = keep
	return c
}

// WithOutputDir marks the configured output directory as an artifact.
func (c *Cleaner) WithOutputDir(dir string) *Cleaner {
	if dir != "" {
		c.extraDirs = append(c.extraDirs, filepath.Base(dir))
	}
	return c
}

// WithStorePath also removes the fingerprint store file during cleaning.
func (c *Cleaner) WithStorePath(p string) *Cleaner {
	c.storePath = p
	return c
}

// WithLogger sets a custom logger.
func (c *Cleaner) WithLogger(logger *slog.Logger) *Cleaner {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// Clean walks the root and removes recognized artifacts, returning the
// removed paths (relative to root, sorted). Unreadable subtrees are
// skipped with a warning.
func (c *Cleaner) Clean(ctx context.Context) ([]string, error) {
	info, err := os.Stat(c.root)
	if err != nil {
		return nil, fmt.Errorf("clean root %s: %w", c.root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("clean root %s is not a directory", c.root)
	}

	var removed []string

	err = filepath.Walk(c.root, func(p string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			c.logger.Warn("Skipping unreadable path during clean", logfields.Path(p), logfields.Error(err))
			return nil
		}
		if p == c.root {
			return nil
		}

		rel, relErr := filepath.Rel(c.root, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if c.keep.IsExcluded(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			if c.isArtifactDir(info.Name()) {
				if err := os.RemoveAll(p); err != nil {
					return fmt.Errorf("remove %s: %w", p, err)
				}
				removed = append(removed, rel)
				return filepath.SkipDir
			}
			return nil
		}

		if c.isArtifactFile(rel) {
			if err := os.Remove(p); err != nil {
				return fmt.Errorf("remove %s: %w", p, err)
			}
			removed = append(removed, rel)
		}
		return nil
	})
	if err != nil {
		return removed, err
	}

	if c.storePath != "" {
		if err := os.Remove(c.storePath); err == nil {
			c.logger.Debug("Removed fingerprint store", logfields.Path(c.storePath))
		} else if !os.IsNotExist(err) {
			c.logger.Warn("Could not remove fingerprint store", logfields.Path(c.storePath), logfields.Error(err))
		}
	}

	sort.Strings(removed)
	c.logger.Info("Clean complete", logfields.Target(c.root), slog.Int("removed", len(removed)))
	return removed, nil
}

func (c *Cleaner) isArtifactDir(name string) bool {
	for _, d := range ArtifactDirs {
		if name == d {
			return true
		}
	}
	for _, d := range c.extraDirs {
		if name == d {
			return true
		}
	}
	return false
}

func (c *Cleaner) isArtifactFile(rel string) bool {
	ext := path.Ext(rel)
	for _, e := range ArtifactExtensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}
