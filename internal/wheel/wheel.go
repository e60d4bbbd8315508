// Package wheel builds Python wheels from a prepared project tree and
// installs them into the active interpreter. Both steps shell out to
// the interpreter so the result matches what a user would get from
// running build and pip by hand.
package wheel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"git.home.luguber.info/inful/cybuild/internal/logfields"
)

const (
	// DefaultPython is the interpreter used when none is configured.
	DefaultPython = "python3"

	terminateGrace = 5 * time.Second
)

// ErrPythonNotFound indicates the interpreter binary is not on PATH.
var ErrPythonNotFound = errors.New("python interpreter not found in PATH")

// ErrNoWheelProduced indicates the build ran but left no wheel behind.
var ErrNoWheelProduced = errors.New("build produced no wheel file")

// Builder produces a wheel from a project directory.
type Builder interface {
	// Build runs a wheel build in projectDir and returns the path of
	// the produced wheel.
	Build(ctx context.Context, projectDir string) (string, error)
}

// Installer installs a built wheel into the current environment.
type Installer interface {
	Install(ctx context.Context, wheelPath string) error
}

// ProcessBuilder shells out to `python -m build --wheel`.
type ProcessBuilder struct {
	python string
	logger *slog.Logger
}

// NewBuilder creates a wheel builder using the given interpreter. An
// empty python falls back to DefaultPython.
func NewBuilder(python string) (*ProcessBuilder, error) {
	if python == "" {
		python = DefaultPython
	}
	resolved, err := exec.LookPath(python)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPythonNotFound, python)
	}
	return &ProcessBuilder{python: resolved, logger: slog.Default()}, nil
}

// WithLogger sets a custom logger.
func (b *ProcessBuilder) WithLogger(logger *slog.Logger) *ProcessBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// Build runs the wheel build and returns the newest wheel in dist/.
func (b *ProcessBuilder) Build(ctx context.Context, projectDir string) (string, error) {
	distDir := filepath.Join(projectDir, "dist")

	cmd := exec.CommandContext(ctx, b.python, "-m", "build", "--wheel", "--outdir", distDir)
	cmd.Dir = projectDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = terminateGrace

	b.logger.Info("Building wheel", logfields.Path(projectDir))
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("wheel build failed: %w\n%s", err, firstNonEmpty(stderr.String(), stdout.String()))
	}

	wheel, err := NewestWheel(distDir)
	if err != nil {
		return "", err
	}
	b.logger.Info("Wheel built", logfields.Output(wheel))
	return wheel, nil
}

// PipInstaller shells out to `python -m pip install`.
type PipInstaller struct {
	python string
	logger *slog.Logger
}

// NewInstaller creates a pip installer using the given interpreter.
func NewInstaller(python string) (*PipInstaller, error) {
	if python == "" {
		python = DefaultPython
	}
	resolved, err := exec.LookPath(python)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPythonNotFound, python)
	}
	return &PipInstaller{python: resolved, logger: slog.Default()}, nil
}

// WithLogger sets a custom logger.
func (i *PipInstaller) WithLogger(logger *slog.Logger) *PipInstaller {
	if logger != nil {
		i.logger = logger
	}
	return i
}

// Install force-reinstalls the wheel so a rebuilt module replaces the
// previously installed one even when the version did not change.
func (i *PipInstaller) Install(ctx context.Context, wheelPath string) error {
	if _, err := os.Stat(wheelPath); err != nil {
		return fmt.Errorf("wheel %s: %w", wheelPath, err)
	}

	cmd := exec.CommandContext(ctx, i.python, "-m", "pip", "install", "--upgrade", "--force-reinstall", wheelPath)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = terminateGrace

	i.logger.Info("Installing wheel", logfields.Path(wheelPath))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pip install failed: %w\n%s", err, firstNonEmpty(stderr.String(), stdout.String()))
	}
	return nil
}

// NewestWheel returns the most recently modified .whl file in dir.
func NewestWheel(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read dist dir %s: %w", dir, err)
	}

	type candidate struct {
		path  string
		mtime time.Time
	}
	var wheels []candidate
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".whl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		wheels = append(wheels, candidate{path: filepath.Join(dir, e.Name()), mtime: info.ModTime()})
	}
	if len(wheels) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoWheelProduced, dir)
	}
	sort.Slice(wheels, func(i, j int) bool { return wheels[i].mtime.After(wheels[j].mtime) })
	return wheels[0].path, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
