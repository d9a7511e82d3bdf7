package main

import (
	"syscall"

	"github.com/spf13/cobra"

	"github.com/XenonAtom/Dom6SaveScummer/internal/config"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running savescum",
		Long:  "Send SIGTERM to the savescum run that owns the configured state directory.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			pid, err := signalDaemon(config.PIDFilePath(resolvedCfg.StateDir), syscall.SIGTERM)
			if err != nil {
				return err
			}

			statusf("Sent SIGTERM to savescum (PID %d)\n", pid)

			return nil
		},
	}
}
