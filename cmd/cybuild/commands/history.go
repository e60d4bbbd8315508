package commands

import (
	"fmt"
	"time"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Target string `short:"t" help:"Target directory whose history to show (default: config target or current directory)"`
	Limit  int    `short:"n" help:"Maximum number of runs to show" default:"20"`
	RunID  string `name:"run" help:"Show per-file outcomes for the given run ID"`
}

func (h *HistoryCmd) Run(_ *Global, root *CLI) error {
	ctx, stop := commandContext()
	defer stop()

	cfg, err := loadConfig(root.Config, h.Target)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.HistoryEnabled() {
		return fmt.Errorf("run history is disabled in %s", root.Config)
	}
	store := openHistory(cfg)
	if store == nil {
		return fmt.Errorf("could not open history database %s", cfg.History.Path)
	}
	defer store.Close()

	if h.RunID != "" {
		units, err := store.UnitsForRun(ctx, h.RunID)
		if err != nil {
			return err
		}
		if len(units) == 0 {
			fmt.Printf("No records for run %s\n", h.RunID)
			return nil
		}
		for _, u := range units {
			if u.Detail != "" {
				fmt.Printf("%-14s %s (%s)\n", u.Status, u.Path, u.Detail)
			} else {
				fmt.Printf("%-14s %s\n", u.Status, u.Path)
			}
		}
		return nil
	}

	runs, err := store.RecentRuns(ctx, h.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No recorded runs")
		return nil
	}
	for _, r := range runs {
		outcome := r.Outcome
		if outcome == "" {
			outcome = "running"
		}
		fmt.Printf("%s  %-8s  %s  ok=%d failed=%d missing=%d skipped=%d\n",
			r.StartedAt.Format(time.RFC3339), outcome, r.ID,
			r.Succeeded, r.Failed, r.MissingModules, r.Skipped)
	}
	return nil
}
