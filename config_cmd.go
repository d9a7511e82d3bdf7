package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/XenonAtom/Dom6SaveScummer/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		RunE:  runConfigShow,
	}
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	if resolvedCfg == nil {
		return errors.New("no configuration loaded")
	}

	if flagJSON {
		return printJSON(os.Stdout, resolvedCfg)
	}

	return config.RenderEffective(resolvedCfg, os.Stdout)
}
