package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/XenonAtom/Dom6SaveScummer/internal/config"
	"github.com/XenonAtom/Dom6SaveScummer/internal/savefile"
	"github.com/XenonAtom/Dom6SaveScummer/internal/scum"
)

const defaultHistoryLimit = 50

func newHistoryCmd() *cobra.Command {
	var (
		limit     int
		snapshots bool
	)

	cmd := &cobra.Command{
		Use:   "history [game]",
		Short: "Show the journal of game and snapshot activity",
		Long: `Show recent lifecycle events (games added, resumed, removed, or waiting
for a first turn file), newest first. With --snapshots, list the journaled
snapshots of one game instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var game string
			if len(args) == 1 {
				game = savefile.NormalizeGame(args[0])
			}

			if snapshots {
				return runSnapshotHistory(cmd.Context(), game)
			}

			return runEventHistory(cmd.Context(), game, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", defaultHistoryLimit, "maximum number of events to show")
	cmd.Flags().BoolVar(&snapshots, "snapshots", false, "list journaled snapshots of the given game")

	return cmd
}

func openJournal(ctx context.Context) (*scum.Journal, func(), error) {
	logger, closeLog := buildLogger()

	if err := os.MkdirAll(resolvedCfg.StateDir, pidDirPermissions); err != nil {
		closeLog()
		return nil, nil, fmt.Errorf("creating state directory: %w", err)
	}

	j, err := scum.OpenJournal(ctx, config.JournalPath(resolvedCfg.StateDir), logger)
	if err != nil {
		closeLog()
		return nil, nil, err
	}

	return j, func() {
		j.Close()
		closeLog()
	}, nil
}

func runEventHistory(ctx context.Context, game string, limit int) error {
	j, closeJournal, err := openJournal(ctx)
	if err != nil {
		return err
	}
	defer closeJournal()

	events, err := j.Events(ctx, game, limit)
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(os.Stdout, events)
	}

	if len(events) == 0 {
		statusf("No events recorded\n")
		return nil
	}

	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		rows = append(rows, []string{formatTime(ev.At), ev.Game, string(ev.Kind), orDash(ev.Detail)})
	}

	printTable(os.Stdout, []string{"WHEN", "GAME", "EVENT", "DETAIL"}, rows)

	return nil
}

func runSnapshotHistory(ctx context.Context, game string) error {
	if game == "" {
		return errors.New("--snapshots requires a game")
	}

	j, closeJournal, err := openJournal(ctx)
	if err != nil {
		return err
	}
	defer closeJournal()

	recs, err := j.Snapshots(ctx, game)
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(os.Stdout, recs)
	}

	if len(recs) == 0 {
		statusf("No snapshots recorded for %s\n", game)
		return nil
	}

	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{
			strconv.Itoa(r.Number), r.TurnFile, formatTime(r.SourceMTime), strconv.Itoa(r.Files), formatAge(r.CreatedAt),
		})
	}

	printTable(os.Stdout, []string{"#", "TURN FILE", "SAVED", "FILES", "RECORDED"}, rows)

	return nil
}
