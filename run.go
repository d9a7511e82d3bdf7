package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/XenonAtom/Dom6SaveScummer/internal/backup"
	"github.com/XenonAtom/Dom6SaveScummer/internal/config"
	"github.com/XenonAtom/Dom6SaveScummer/internal/scum"
)

func newRunCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Back up every new turn until interrupted",
		Long: `Track every game in the saved-games directory and snapshot each new turn.

Games that already have backups resume their numbering. A game whose
directory disappears from the saved-games directory loses its backups.

With --once, a single pass is made over the saved-games directory and the
command exits.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSaveScum(cmd.Context(), once)
		},
	}

	cmd.Flags().String("mode", "", "observer mode: poll or watch (overrides config)")
	cmd.Flags().BoolVar(&once, "once", false, "make a single backup pass and exit")

	return cmd
}

func runSaveScum(ctx context.Context, once bool) error {
	cfg := resolvedCfg

	logger, closeLog := buildLogger()
	defer closeLog()

	cleanup, err := writePIDFile(config.PIDFilePath(cfg.StateDir))
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ctx = newSignalStopper(logger, cleanup).Context(ctx)

	journal, err := scum.OpenJournal(ctx, config.JournalPath(cfg.StateDir), logger)
	if err != nil {
		return err
	}
	defer journal.Close()

	engine := newEngine(cfg, journal, logger)

	if once {
		return runOnce(ctx, engine)
	}

	statusf("Backing up %s into %s (%s mode). Press Ctrl-C to stop.\n",
		cfg.SavesDir, cfg.BackupDir, cfg.Mode)

	return engine.Run(ctx)
}

// newEngine assembles the store, the registry, and the observer selected by
// the configured mode.
func newEngine(cfg *config.Resolved, recorder scum.Recorder, logger *slog.Logger) *scum.Engine {
	store := backup.NewStore(cfg.BackupDir, cfg.MinFreeSpace, logger)

	registry := scum.NewRegistry(&scum.RegistryConfig{
		Store:      store,
		SourceRoot: cfg.SavesDir,
		CopyStatic: cfg.CopyStaticFiles,
		Tolerance:  cfg.MtimeTolerance,
		Recorder:   recorder,
		Logger:     logger,

		FailureThreshold: cfg.FailureThreshold,
		FailureCooldown:  cfg.FailureCooldown,
	})

	var observer scum.Observer
	if cfg.Mode == config.ModeWatch {
		observer = scum.NewWatchObserver(cfg.SavesDir, scum.WatchOpts{
			SafetyScanInterval: cfg.SafetyScanInterval,
			Debounce:           cfg.WatchDebounce,
		}, logger)
	} else {
		observer = scum.NewPollObserver(cfg.SavesDir, cfg.PollInterval, logger)
	}

	return scum.NewEngine(&scum.EngineConfig{
		Registry: registry,
		Observer: observer,
		SavesDir: cfg.SavesDir,
		Workers:  cfg.CheckWorkers,
		Logger:   logger,
	})
}

func runOnce(ctx context.Context, engine *scum.Engine) error {
	report, err := engine.RunOnce(ctx)
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(os.Stdout, report)
	}

	for _, g := range report.Added {
		statusf("Tracking %s\n", g)
	}

	for _, g := range report.Removed {
		statusf("Removed backups of %s\n", g)
	}

	fmt.Printf("%d new snapshot(s)\n", report.Snapshots)

	return nil
}
