package commands

import (
	"fmt"

	"git.home.luguber.info/inful/cybuild/internal/lifecycle"
)

// LibCmd implements the 'lib' command: compile an installed library in
// a temporary workspace and reinstall the result as a wheel.
type LibCmd struct {
	Name   string `arg:"" help:"Importable name of the installed library (e.g. requests)"`
	Python string `help:"Python interpreter owning the library" default:"python3"`
}

func (l *LibCmd) Run(_ *Global, root *CLI) error {
	ctx, stop := commandContext()
	defer stop()

	cfg, err := loadConfig(root.Config, "")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// Library trees are compiled from a fresh copy each time.
	cfg.Build.Force = true

	ctrl := lifecycle.New(cfg).WithInstall(l.Python)
	rpt, err := ctrl.BuildLibrary(ctx, l.Name)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", l.Name, rpt.Summary())
	return nil
}
