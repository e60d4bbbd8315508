package commands

import (
	"fmt"
	"path/filepath"

	"git.home.luguber.info/inful/cybuild/internal/artifacts"
)

// ListCmd implements the 'list' command.
type ListCmd struct {
	Target string `short:"t" help:"Target directory to inspect (default: config target or current directory)"`
}

func (l *ListCmd) Run(_ *Global, root *CLI) error {
	ctx, stop := commandContext()
	defer stop()

	cfg, err := loadConfig(root.Config, l.Target)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	absRoot, err := filepath.Abs(cfg.Target)
	if err != nil {
		return err
	}

	found, err := artifacts.List(ctx, absRoot)
	if err != nil {
		return err
	}

	var total int64
	for _, a := range found {
		fmt.Printf("%10d  %s\n", a.SizeBytes, a.RelPath)
		total += a.SizeBytes
	}
	fmt.Printf("%d compiled module(s), %d bytes total\n", len(found), total)
	return nil
}
