package commands

import (
	"fmt"

	"git.home.luguber.info/inful/cybuild/internal/lifecycle"
)

// CleanCmd implements the 'clean' command.
type CleanCmd struct {
	Target string   `short:"t" help:"Target directory to clean (default: config target or current directory)"`
	Keep   []string `short:"k" help:"Additional keep patterns; matching paths survive cleaning"`
}

func (c *CleanCmd) Run(_ *Global, root *CLI) error {
	ctx, stop := commandContext()
	defer stop()

	cfg, err := loadConfig(root.Config, c.Target)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cfg.Exclusion.Extra = append(cfg.Exclusion.Extra, c.Keep...)

	removed, err := lifecycle.New(cfg).Clean(ctx)
	if err != nil {
		return err
	}

	if root.Verbose {
		for _, p := range removed {
			fmt.Println(p)
		}
	}
	fmt.Printf("Removed %d artifact(s) from %s\n", len(removed), cfg.Target)
	return nil
}
