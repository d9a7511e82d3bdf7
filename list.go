package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/XenonAtom/Dom6SaveScummer/internal/backup"
	"github.com/XenonAtom/Dom6SaveScummer/internal/config"
	"github.com/XenonAtom/Dom6SaveScummer/internal/savefile"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [game]",
		Short: "List backed-up games, or the snapshots of one game",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runList,
	}
}

// gameSummary is one row of the game listing.
type gameSummary struct {
	Game       string    `json:"game"`
	Live       bool      `json:"live"`
	Snapshots  int       `json:"snapshots"`
	Latest     int       `json:"latest"`
	TurnFile   string    `json:"turn_file,omitempty"`
	LastSaveAt time.Time `json:"last_save_at,omitzero"`
}

// snapshotSummary is one row of a game's snapshot listing.
type snapshotSummary struct {
	Number   int       `json:"number"`
	TurnFile string    `json:"turn_file"`
	SavedAt  time.Time `json:"saved_at"`
	Files    int       `json:"files"`
	Bytes    int64     `json:"bytes"`
}

func runList(_ *cobra.Command, args []string) error {
	cfg := resolvedCfg

	logger, closeLog := buildLogger()
	defer closeLog()

	store := backup.NewStore(cfg.BackupDir, 0, logger)

	if len(args) == 1 {
		return listSnapshots(store, savefile.NormalizeGame(args[0]))
	}

	summaries, err := summarizeGames(store, cfg.SavesDir)
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(os.Stdout, summaries)
	}

	if pid, ok := runningDaemon(config.PIDFilePath(cfg.StateDir)); ok {
		statusf("savescum is running (PID %d)\n", pid)
	}

	if len(summaries) == 0 {
		statusf("No games found in %s or %s\n", cfg.SavesDir, cfg.BackupDir)
		return nil
	}

	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		live := "no"
		if s.Live {
			live = "yes"
		}

		latest := "-"
		if s.Snapshots > 0 {
			latest = strconv.Itoa(s.Latest)
		}

		rows = append(rows, []string{
			s.Game, live, strconv.Itoa(s.Snapshots), latest, orDash(s.TurnFile), formatAge(s.LastSaveAt),
		})
	}

	printTable(os.Stdout, []string{"GAME", "LIVE", "SNAPSHOTS", "LATEST", "TURN FILE", "LAST SAVE"}, rows)

	return nil
}

// summarizeGames merges the live game directories with the games that have
// backups.
func summarizeGames(store *backup.Store, savesDir string) ([]gameSummary, error) {
	live, err := savefile.LiveGames(savesDir)
	if err != nil {
		return nil, err
	}

	backedUp, err := store.Games()
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*gameSummary)

	for _, g := range live {
		byName[g] = &gameSummary{Game: g, Live: true}
	}

	for _, g := range backedUp {
		if _, ok := byName[g]; !ok {
			byName[g] = &gameSummary{Game: g}
		}
	}

	out := make([]gameSummary, 0, len(byName))

	for _, s := range byName {
		snaps, err := store.Snapshots(s.Game)
		if err != nil {
			return nil, err
		}

		s.Snapshots = len(snaps)
		if len(snaps) > 0 {
			last := snaps[len(snaps)-1]
			s.Latest = last.Number
			s.TurnFile = last.Turn.Name()
			s.LastSaveAt = last.TurnModTime
		}

		out = append(out, *s)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Game < out[j].Game })

	return out, nil
}

func listSnapshots(store *backup.Store, game string) error {
	snaps, err := store.Snapshots(game)
	if err != nil {
		return err
	}

	if len(snaps) == 0 {
		return fmt.Errorf("no snapshots for game %q", game)
	}

	summaries := make([]snapshotSummary, 0, len(snaps))
	for _, snap := range snaps {
		summaries = append(summaries, snapshotSummary{
			Number:   snap.Number,
			TurnFile: snap.Turn.Name(),
			SavedAt:  snap.TurnModTime,
			Files:    len(snap.Files),
			Bytes:    dirSize(snap.Dir, snap.Files),
		})
	}

	if flagJSON {
		return printJSON(os.Stdout, summaries)
	}

	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{
			strconv.Itoa(s.Number), s.TurnFile, formatTime(s.SavedAt), strconv.Itoa(s.Files), formatSize(s.Bytes),
		})
	}

	printTable(os.Stdout, []string{"#", "TURN FILE", "SAVED", "FILES", "SIZE"}, rows)

	return nil
}

func dirSize(dir string, files []string) int64 {
	var total int64

	for _, name := range files {
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil {
			total += info.Size()
		}
	}

	return total
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}

	return s
}
