//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var binaryPath string

func TestMain(m *testing.M) {
	// Build binary to temp dir.
	tmpDir, err := os.MkdirTemp("", "savescum-e2e-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating temp dir: %v\n", err)
		os.Exit(1)
	}

	binaryPath = filepath.Join(tmpDir, "savescum")

	cmd := exec.Command("go", "build", "-o", binaryPath, ".")
	cmd.Dir = findModuleRoot()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "building binary: %v\n", err)
		os.RemoveAll(tmpDir)
		os.Exit(1)
	}

	cleanup := setupIsolation()
	code := m.Run()

	cleanup()
	os.RemoveAll(tmpDir)
	os.Exit(code)
}

// findModuleRoot walks up from the current dir to find go.mod.
func findModuleRoot() string {
	dir, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// e2e/ is one level below the module root.
			return ".."
		}

		dir = parent
	}
}

func runCLI(t *testing.T, args ...string) (string, string) {
	t.Helper()

	cmd := exec.Command(binaryPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		t.Fatalf("CLI command %v failed: %v\nstdout: %s\nstderr: %s", args, err, stdout.String(), stderr.String())
	}

	return stdout.String(), stderr.String()
}

// testTree is an isolated saved-games directory with its backup and state
// directories and a config file pointing at them.
type testTree struct {
	saves, backups, state, config string
}

func newTestTree(t *testing.T, extra string) *testTree {
	t.Helper()

	root := t.TempDir()
	tt := &testTree{
		saves:   filepath.Join(root, "savedgames"),
		backups: filepath.Join(root, "backups"),
		state:   filepath.Join(root, "state"),
		config:  filepath.Join(root, "config.toml"),
	}

	require.NoError(t, os.MkdirAll(tt.saves, 0o755))

	content := fmt.Sprintf("saves_dir = %q\nbackup_dir = %q\nstate_dir = %q\n%s",
		tt.saves, tt.backups, tt.state, extra)
	require.NoError(t, os.WriteFile(tt.config, []byte(content), 0o600))

	return tt
}

func (tt *testTree) writeTurn(t *testing.T, game, name, content string, mtime time.Time) {
	t.Helper()

	dir := filepath.Join(tt.saves, game)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func (tt *testTree) snapshotExists(game string, n int) bool {
	_, err := os.Stat(filepath.Join(tt.backups, game, strconv.Itoa(n)))
	return err == nil
}

type passReport struct {
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
	Snapshots int      `json:"snapshots"`
}

func runOnce(t *testing.T, tt *testTree) passReport {
	t.Helper()

	stdout, _ := runCLI(t, "--config", tt.config, "--json", "run", "--once")

	var report passReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &report), stdout)

	return report
}

func TestE2E_OnceSequence(t *testing.T) {
	tt := newTestTree(t, "")
	t0 := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)

	tt.writeTurn(t, "Ermor", "early_ermor.trn", "turn 1", t0)

	report := runOnce(t, tt)
	assert.Equal(t, []string{"Ermor"}, report.Added)
	assert.True(t, tt.snapshotExists("Ermor", 0))

	tt.writeTurn(t, "Ermor", "early_ermor.trn", "turn 2", t0.Add(time.Hour))

	report = runOnce(t, tt)
	assert.Equal(t, 1, report.Snapshots)
	assert.True(t, tt.snapshotExists("Ermor", 1))

	// Unchanged directory: nothing to do.
	report = runOnce(t, tt)
	assert.Zero(t, report.Snapshots)
	assert.False(t, tt.snapshotExists("Ermor", 2))

	stdout, _ := runCLI(t, "--config", tt.config, "--json", "list", "Ermor")

	var snaps []map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &snaps))
	assert.Len(t, snaps, 2)
}

func TestE2E_WatchModeSnapshotsAndStops(t *testing.T) {
	tt := newTestTree(t, "mode = \"watch\"\nwatch_debounce = \"100ms\"\n")
	t0 := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)

	tt.writeTurn(t, "Ulm", "early_ulm.trn", "turn 1", t0)

	// Seed history so the watcher resumes the game at startup.
	runOnce(t, tt)
	require.True(t, tt.snapshotExists("Ulm", 0))

	cmd := exec.Command(binaryPath, "--config", tt.config, "-q", "run")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	require.NoError(t, cmd.Start())

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	t.Cleanup(func() { _ = cmd.Process.Kill() })

	// Wait for the PID file, which is written before watching starts.
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(tt.state, "savescum.pid"))
		return err == nil
	}, 10*time.Second, 50*time.Millisecond)

	// Keep rewriting until the watcher has picked it up; the watch may not be
	// registered the instant the PID file appears. Rewrites are spaced well
	// past the debounce window so the file gets a chance to settle.
	require.Eventually(t, func() bool {
		tt.writeTurn(t, "Ulm", "early_ulm.trn", "turn 2", t0.Add(time.Hour))
		return tt.snapshotExists("Ulm", 1)
	}, 15*time.Second, 750*time.Millisecond, "stderr: %s", stderr.String())

	runCLI(t, "--config", tt.config, "stop")

	select {
	case err := <-done:
		require.NoError(t, err, "stderr: %s", stderr.String())
	case <-time.After(10 * time.Second):
		t.Fatal("savescum did not exit after stop")
	}

	assert.NoFileExists(t, filepath.Join(tt.state, "savescum.pid"))
}

func TestE2E_ListAndHistory(t *testing.T) {
	tt := newTestTree(t, "")
	t0 := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)

	tt.writeTurn(t, "Ermor", "early_ermor.trn", "turn 1", t0)
	tt.writeTurn(t, "Pythium", "early_pythium.trn", "turn 1", t0)

	runOnce(t, tt)
	require.True(t, tt.snapshotExists("Pythium", 0))

	stdout, _ := runCLI(t, "--config", tt.config, "--json", "list")

	var games []map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &games))
	assert.Len(t, games, 2)

	stdout, _ = runCLI(t, "--config", tt.config, "--json", "history")

	var events []map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &events))
	assert.Len(t, events, 2)
}

func TestE2E_ConfigShowJSON(t *testing.T) {
	tt := newTestTree(t, "check_workers = 2\n")

	stdout, _ := runCLI(t, "--config", tt.config, "--json", "config", "show")

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, tt.saves, out["SavesDir"])
	assert.EqualValues(t, 2, out["CheckWorkers"])
}
