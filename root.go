package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/XenonAtom/Dom6SaveScummer/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagSavesDir   string
	flagBackupDir  string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
// It is available to all subcommands after the root pre-run phase completes.
var resolvedCfg *config.Resolved

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "savescum",
		Short: "Turn-by-turn backups for Dominions 6 saved games",
		Long: "Watches the Dominions 6 saved-games directory and keeps a numbered " +
			"snapshot of every turn a game produces, so any earlier turn can be restored.",
		Version: version,
		// Errors are printed by exitOnError.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagSavesDir, "saves-dir", "", "Dominions 6 saved-games directory")
	cmd.PersistentFlags().StringVar(&flagBackupDir, "backup-dir", "", "directory that receives the snapshots")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the four-layer
// override chain and stores the result in resolvedCfg for use by
// subcommands. Only flags the user actually set reach the resolver.
func loadConfig(cmd *cobra.Command) error {
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
	}

	if cmd.Flags().Changed("saves-dir") {
		cli.SavesDir = &flagSavesDir
	}

	if cmd.Flags().Changed("backup-dir") {
		cli.BackupDir = &flagBackupDir
	}

	if f := cmd.Flags().Lookup("mode"); f != nil && f.Changed {
		mode := f.Value.String()
		cli.Mode = &mode
	}

	env, err := config.ReadEnvOverrides()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolved, err := config.Resolve(env, cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved

	return nil
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
