package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XenonAtom/Dom6SaveScummer/internal/backup"
	"github.com/XenonAtom/Dom6SaveScummer/internal/config"
	"github.com/XenonAtom/Dom6SaveScummer/testutil"
)

func runCLI(t *testing.T, args ...string) error {
	t.Helper()

	cmd := newRootCmd()
	cmd.SetArgs(args)

	return cmd.Execute()
}

func TestRunOnce_SnapshotsNewTurns(t *testing.T) {
	isolateConfig(t)

	tree := testutil.NewSaveTree(t)
	path := writeTreeConfig(t, tree, "")

	tree.WriteFile(t, "Ermor", "early_ermor.trn", "t0", testutil.BaseTime)
	tree.WriteFile(t, "Ermor", "ftherlnd", "map", testutil.BaseTime)

	require.NoError(t, runCLI(t, "--config", path, "-q", "run", "--once"))
	assert.Equal(t, []int{0}, tree.SnapshotNumbers(t, "Ermor"))
	assert.FileExists(t, filepath.Join(tree.Backups, "Ermor", "0", "ftherlnd"))

	// A later process resumes the numbering from the backups on disk.
	tree.WriteFile(t, "Ermor", "early_ermor.trn", "t1", testutil.BaseTime.Add(time.Minute))

	require.NoError(t, runCLI(t, "--config", path, "-q", "run", "--once"))
	assert.Equal(t, []int{0, 1}, tree.SnapshotNumbers(t, "Ermor"))

	// The run journaled what it did and released its PID file.
	assert.FileExists(t, config.JournalPath(tree.State))
	assert.NoFileExists(t, config.PIDFilePath(tree.State))
}

func TestRunOnce_RefusesSecondInstance(t *testing.T) {
	isolateConfig(t)

	tree := testutil.NewSaveTree(t)
	path := writeTreeConfig(t, tree, "")

	cleanup, err := writePIDFile(config.PIDFilePath(tree.State))
	require.NoError(t, err)
	defer cleanup()

	err = runCLI(t, "--config", path, "-q", "run", "--once")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestList_SummarizesLiveAndBackedUpGames(t *testing.T) {
	isolateConfig(t)

	tree := testutil.NewSaveTree(t)
	path := writeTreeConfig(t, tree, "")

	tree.WriteFile(t, "Ermor", "early_ermor.trn", "t0", testutil.BaseTime)
	tree.MkGame(t, "Ulm")

	require.NoError(t, runCLI(t, "--config", path, "-q", "run", "--once"))

	// Backups left behind by a game that is no longer live.
	require.NoError(t, os.MkdirAll(filepath.Join(tree.Backups, "Pangaea", "0"), 0o755))

	store := backup.NewStore(tree.Backups, 0, testutil.Logger(t))

	summaries, err := summarizeGames(store, tree.Saves)
	require.NoError(t, err)
	require.Len(t, summaries, 3)

	assert.Equal(t, "Ermor", summaries[0].Game)
	assert.True(t, summaries[0].Live)
	assert.Equal(t, 1, summaries[0].Snapshots)
	assert.Equal(t, "early_ermor.trn", summaries[0].TurnFile)
	assert.True(t, summaries[0].LastSaveAt.Equal(testutil.BaseTime))

	assert.Equal(t, "Pangaea", summaries[1].Game)
	assert.False(t, summaries[1].Live)
	assert.Zero(t, summaries[1].Snapshots)

	assert.Equal(t, "Ulm", summaries[2].Game)
	assert.True(t, summaries[2].Live)
	assert.Zero(t, summaries[2].Snapshots)

	require.NoError(t, runCLI(t, "--config", path, "-q", "list"))
	require.NoError(t, runCLI(t, "--config", path, "-q", "list", "Ermor"))
	assert.Error(t, runCLI(t, "--config", path, "-q", "list", "Ulm"))
}

func TestHistory_ShowsJournal(t *testing.T) {
	isolateConfig(t)

	tree := testutil.NewSaveTree(t)
	path := writeTreeConfig(t, tree, "")

	tree.WriteFile(t, "Ermor", "early_ermor.trn", "t0", testutil.BaseTime)
	require.NoError(t, runCLI(t, "--config", path, "-q", "run", "--once"))

	require.NoError(t, runCLI(t, "--config", path, "--json", "history"))
	require.NoError(t, runCLI(t, "--config", path, "history", "--snapshots", "Ermor"))
	assert.Error(t, runCLI(t, "--config", path, "history", "--snapshots"))
}

func TestStop_NoDaemon(t *testing.T) {
	isolateConfig(t)

	tree := testutil.NewSaveTree(t)
	path := writeTreeConfig(t, tree, "")

	err := runCLI(t, "--config", path, "stop")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no running daemon")
}
