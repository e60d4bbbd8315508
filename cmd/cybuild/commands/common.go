package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/cybuild/internal/config"
	"git.home.luguber.info/inful/cybuild/internal/history"
	"git.home.luguber.info/inful/cybuild/internal/logfields"
)

// Global context passed to subcommands if we need to share global state later.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"cybuild.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build   BuildCmd   `cmd:"" default:"withargs" help:"Compile Python sources in the target directory to native extensions"`
	Lib     LibCmd     `cmd:"" help:"Compile an installed Python library and reinstall it"`
	Clean   CleanCmd   `cmd:"" help:"Remove build artifacts from the target directory"`
	List    ListCmd    `cmd:"" help:"List compiled extension modules in the target directory"`
	Watch   WatchCmd   `cmd:"" help:"Watch the target directory and rebuild on source changes"`
	History HistoryCmd `cmd:"" help:"Show past build runs"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// loadConfig loads the configuration file and applies an optional
// target override from the command line.
func loadConfig(path, target string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if target != "" {
		cfg.Target = target
	}
	if cfg.Target == "" {
		cfg.Target = "."
	}
	return cfg, nil
}

// commandContext returns a context canceled on SIGINT/SIGTERM so a run
// shuts down gracefully and flushes its state.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openHistory opens the run-history store when enabled; a nil store
// disables recording. Failures degrade to a warning, a build should
// never die because its log could not be opened.
func openHistory(cfg *config.Config) *history.Store {
	if !cfg.HistoryEnabled() {
		return nil
	}
	path := cfg.History.Path
	if !filepath.IsAbs(path) {
		target, err := filepath.Abs(cfg.Target)
		if err != nil {
			return nil
		}
		path = filepath.Join(target, path)
	}
	store, err := history.Open(path)
	if err != nil {
		slog.Warn("Run history disabled", logfields.Path(path), logfields.Error(err))
		return nil
	}
	return store
}
