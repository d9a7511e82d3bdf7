// Package testutil provides fixtures shared by package tests: a temporary
// saved-games tree with its backup root, and a logger that writes to t.Log.
// It depends only on stdlib.
package testutil

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"testing"
	"time"
)

// BaseTime is a fixed, second-aligned timestamp fixtures build mtimes from.
var BaseTime = time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)

// SaveTree is a temporary saved-games directory plus a backup root and a
// state directory.
type SaveTree struct {
	Saves   string
	Backups string
	State   string
}

// NewSaveTree creates empty saves, backups, and state directories under
// t.TempDir().
func NewSaveTree(t testing.TB) *SaveTree {
	t.Helper()

	root := t.TempDir()
	st := &SaveTree{
		Saves:   filepath.Join(root, "savedgames"),
		Backups: filepath.Join(root, "backups"),
		State:   filepath.Join(root, "state"),
	}

	for _, dir := range []string{st.Saves, st.Backups, st.State} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("creating %s: %v", dir, err)
		}
	}

	return st
}

// GameDir returns the source directory of a game.
func (s *SaveTree) GameDir(game string) string {
	return filepath.Join(s.Saves, game)
}

// WriteFile writes a file into a game directory with the given mtime and
// returns its path. The game directory is created if needed.
func (s *SaveTree) WriteFile(t testing.TB, game, name, content string, mtime time.Time) string {
	t.Helper()

	dir := s.GameDir(game)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("creating %s: %v", dir, err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}

	Touch(t, path, mtime)

	return path
}

// MkGame creates an empty game directory.
func (s *SaveTree) MkGame(t testing.TB, game string) {
	t.Helper()

	if err := os.MkdirAll(s.GameDir(game), 0o755); err != nil {
		t.Fatalf("creating game %s: %v", game, err)
	}
}

// RemoveGame deletes a game's source directory.
func (s *SaveTree) RemoveGame(t testing.TB, game string) {
	t.Helper()

	if err := os.RemoveAll(s.GameDir(game)); err != nil {
		t.Fatalf("removing game %s: %v", game, err)
	}
}

// SnapshotPath returns the path of a file inside snapshot n of a game.
func (s *SaveTree) SnapshotPath(game string, n int, name string) string {
	return filepath.Join(s.Backups, game, strconv.Itoa(n), name)
}

// SnapshotNumbers returns the integer-named directories in a game's backup
// directory, ascending. Returns nil when the game has no backup directory.
func (s *SaveTree) SnapshotNumbers(t testing.TB, game string) []int {
	t.Helper()

	entries, err := os.ReadDir(filepath.Join(s.Backups, game))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		t.Fatalf("listing backups of %s: %v", game, err)
	}

	var nums []int

	for _, e := range entries {
		if n, err := strconv.Atoi(e.Name()); err == nil && e.IsDir() {
			nums = append(nums, n)
		}
	}

	sort.Ints(nums)

	return nums
}

// Touch sets both access and modification time of path.
func Touch(t testing.TB, path string, mtime time.Time) {
	t.Helper()

	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

// Logger returns a debug-level logger that writes to t.Log, so all activity
// appears in test output.
func Logger(t testing.TB) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&logWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// logWriter adapts testing.TB to io.Writer for slog.
type logWriter struct {
	t testing.TB
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}
