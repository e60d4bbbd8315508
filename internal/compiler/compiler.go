// Package compiler abstracts the external source-to-native toolchain
// behind a narrow process-invocation interface. The orchestrator knows
// nothing about the tool beyond its exit code and diagnostic text.
package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// DefaultBinary is the toolchain entry point looked up on PATH.
const DefaultBinary = "cythonize"

// terminateGrace is how long a canceled compiler process gets to exit
// after SIGTERM before it is killed.
const terminateGrace = 5 * time.Second

// Directives are the optimization directives passed to every
// compilation. They mirror the annotations the Annotator inserts.
var Directives = map[string]string{
	"boundscheck":      "False",
	"wraparound":       "False",
	"nonecheck":        "False",
	"cdivision":        "True",
	"language_level":   "3",
	"initializedcheck": "False",
	"infer_types":      "True",
}

// Request describes one compilation of an annotated source file.
type Request struct {
	SourcePath string // Annotated .pyx file
	BuildDir   string // Intermediate build directory
	Workdir    string // Working directory for the invocation
}

// Result captures the outcome of one compiler invocation.
type Result struct {
	ExitCode      int
	Stdout        string
	Stderr        string
	MissingModule string // Unresolved import identifier, when detected
}

// Success reports whether the invocation exited cleanly.
func (r *Result) Success() bool { return r != nil && r.ExitCode == 0 }

// Diagnostics returns the combined diagnostic text, stderr first.
func (r *Result) Diagnostics() string {
	switch {
	case r == nil:
		return ""
	case r.Stderr != "" && r.Stdout != "":
		return r.Stderr + "\n" + r.Stdout
	case r.Stderr != "":
		return r.Stderr
	default:
		return r.Stdout
	}
}

// Compiler is the boundary to the external toolchain. Implementations
// must be safe for concurrent use: the scheduler invokes Compile from
// multiple workers.
type Compiler interface {
	// Compile runs the toolchain on one annotated source. A non-zero
	// exit is reported through the Result, not the error; the error is
	// reserved for failures to invoke the tool at all.
	Compile(ctx context.Context, req Request) (*Result, error)

	// Version returns the toolchain version string used for fingerprint
	// invalidation across compiler upgrades.
	Version(ctx context.Context) (string, error)
}

// Cythonize invokes the cythonize binary out of process, so a compiler
// crash cannot take the orchestrator down with it.
type Cythonize struct {
	binary string
	logger *slog.Logger
}

// NewCythonize creates a Cythonize compiler. An empty binary selects the
// default from PATH.
func NewCythonize(binary string) *Cythonize {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Cythonize{binary: binary, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (c *Cythonize) WithLogger(logger *slog.Logger) *Cythonize {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// ErrCompilerNotFound indicates the toolchain binary is not on PATH.
var ErrCompilerNotFound = errors.New("compiler binary not found")

// Compile runs `cythonize -i` on the annotated source with the standard
// directive set, capturing both output streams.
func (c *Cythonize) Compile(ctx context.Context, req Request) (*Result, error) {
	bin, err := exec.LookPath(c.binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCompilerNotFound, c.binary, err)
	}

	args := []string{"-i", "-j", "1"}
	for _, d := range directiveArgs() {
		args = append(args, "-X", d)
	}
	if req.BuildDir != "" {
		args = append(args, "-b", req.BuildDir)
	}
	args = append(args, req.SourcePath)

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = req.Workdir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// On cancellation, let the compiler exit cleanly before killing it.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = terminateGrace

	c.logger.Debug("Invoking compiler", "binary", bin, "source", req.SourcePath)
	runErr := cmd.Run()

	res := &Result{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("invoke compiler: %w", runErr)
		}
		res.ExitCode = exitErr.ExitCode()
		res.MissingModule = DetectMissingModule(res.Diagnostics())
	}
	return res, nil
}

// Version asks the binary for its version string.
func (c *Cythonize) Version(ctx context.Context) (string, error) {
	bin, err := exec.LookPath(c.binary)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrCompilerNotFound, c.binary, err)
	}

	cmd := exec.CommandContext(ctx, bin, "--version")
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out // Cython historically prints the version to stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("query compiler version: %w", err)
	}

	v := strings.TrimSpace(out.String())
	if v == "" {
		return "", errors.New("compiler reported an empty version")
	}
	return v, nil
}

func directiveArgs() []string {
	args := make([]string, 0, len(Directives))
	for k, v := range Directives {
		args = append(args, k+"="+v)
	}
	sort.Strings(args)
	return args
}

// Noop is a Compiler that succeeds without doing anything. Used for dry
// runs and tests.
type Noop struct {
	// FixedVersion is returned from Version; defaults to "noop".
	FixedVersion string
}

func (n *Noop) Compile(_ context.Context, _ Request) (*Result, error) {
	return &Result{}, nil
}

func (n *Noop) Version(_ context.Context) (string, error) {
	if n.FixedVersion != "" {
		return n.FixedVersion, nil
	}
	return "noop", nil
}
