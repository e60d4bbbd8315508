package commands

import (
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/cybuild/internal/lifecycle"
	"git.home.luguber.info/inful/cybuild/internal/logfields"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Targets []string `short:"t" name:"target" help:"Target directories to compile (default: config target or current directory)"`
	Output  string   `short:"o" help:"Output directory for staged and compiled artifacts (default from config)"`
	Jobs    int      `short:"j" help:"Worker pool size (default from config, 0 = all CPUs)"`
	Force   bool     `short:"f" help:"Ignore the fingerprint cache and rebuild everything"`
	Fresh   bool     `help:"Remove the output directory before building"`
	Install bool     `short:"i" help:"Build a wheel and pip install it after a successful build"`
	Python  string   `help:"Python interpreter used for wheel build and install" default:"python3"`
}

func (b *BuildCmd) Run(_ *Global, root *CLI) error {
	ctx, stop := commandContext()
	defer stop()

	targets := b.Targets
	if len(targets) == 0 {
		targets = []string{""}
	}

	var failures int
	for _, target := range targets {
		cfg, err := loadConfig(root.Config, target)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if b.Output != "" {
			cfg.Output.Directory = b.Output
		}
		if b.Jobs > 0 {
			cfg.Build.Jobs = b.Jobs
		}
		if b.Force {
			cfg.Build.Force = true
		}
		if b.Fresh {
			cfg.Output.Fresh = true
		}

		ctrl := lifecycle.New(cfg)
		if b.Install {
			ctrl.WithInstall(b.Python)
		}
		if hist := openHistory(cfg); hist != nil {
			ctrl.WithHistory(hist)
			defer hist.Close()
		}

		rpt, err := ctrl.Build(ctx)
		if err != nil {
			slog.Error("Build failed", logfields.Target(cfg.Target), logfields.Error(err))
			failures++
			if ctx.Err() != nil {
				break
			}
			continue
		}
		fmt.Printf("%s: %s\n", cfg.Target, rpt.Summary())

		// A partially failed run finishes the state machine normally but
		// still exits nonzero so callers notice the failed subset.
		if _, failed, missing, _ := rpt.Counts(); failed+missing > 0 {
			slog.Warn("Some units failed", logfields.Target(cfg.Target),
				slog.Int("failed", failed), slog.Int("missing_modules", missing))
			failures++
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d target(s) failed", failures)
	}
	return nil
}
