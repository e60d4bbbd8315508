package commands

import (
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/cybuild/internal/lifecycle"
	"git.home.luguber.info/inful/cybuild/internal/logfields"
	"git.home.luguber.info/inful/cybuild/internal/metrics"
	"git.home.luguber.info/inful/cybuild/internal/pathspec"
	"git.home.luguber.info/inful/cybuild/internal/watch"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Target         string        `short:"t" help:"Target directory to watch (default: config target or current directory)"`
	Output         string        `short:"o" help:"Output directory for staged and compiled artifacts (default from config)"`
	RescanInterval time.Duration `help:"Periodic full rescan interval (e.g. 5m); overrides config, 0 disables"`
	MetricsAddr    string        `help:"Serve Prometheus metrics on this address (e.g. :9090); empty disables"`
}

func (w *WatchCmd) Run(_ *Global, root *CLI) error {
	ctx, stop := commandContext()
	defer stop()

	cfg, err := loadConfig(root.Config, w.Target)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if w.Output != "" {
		cfg.Output.Directory = w.Output
	}
	absRoot, err := filepath.Abs(cfg.Target)
	if err != nil {
		return err
	}

	ctrl := lifecycle.New(cfg)
	if hist := openHistory(cfg); hist != nil {
		ctrl.WithHistory(hist)
		defer hist.Close()
	}

	if w.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		ctrl.WithRecorder(metrics.NewPrometheusRecorder(reg))

		server := &http.Server{
			Addr:              w.MetricsAddr,
			Handler:           metrics.HTTPHandler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("Metrics server failed", logfields.Error(err))
			}
		}()
		defer server.Close()
		slog.Info("Serving metrics", slog.String("addr", w.MetricsAddr))
	}

	patterns, err := pathspec.LoadPatterns(absRoot, pathspec.LoadOptions{
		File:           cfg.Exclusion.File,
		MergeGitignore: cfg.MergeGitignore(),
		Extra:          cfg.Exclusion.Extra,
	})
	if err != nil {
		return fmt.Errorf("load exclusion patterns: %w", err)
	}
	matcher, err := pathspec.Compile(patterns)
	if err != nil {
		return fmt.Errorf("compile exclusion patterns: %w", err)
	}

	watcher, err := watch.New(absRoot, ctrl)
	if err != nil {
		return err
	}
	rescan := cfg.RescanInterval()
	if w.RescanInterval > 0 {
		rescan = w.RescanInterval
	}
	return watcher.
		WithDebounce(cfg.WatchDebounce()).
		WithRescanInterval(rescan).
		WithMatcher(matcher).
		Run(ctx)
}
