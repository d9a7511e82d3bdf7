package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XenonAtom/Dom6SaveScummer/internal/config"
	"github.com/XenonAtom/Dom6SaveScummer/testutil"
)

// Global flag reset pattern: newRootCmd() binds flags via StringVar/BoolVar,
// which reset the global flag variables to their zero values. Tests must either:
//   - Set globals AFTER newRootCmd() returns (direct function tests), or
//   - Use cmd.SetArgs() + cmd.Execute() to let Cobra parse flags.
//
// Setting a global before newRootCmd() and expecting it to survive is a bug.

// isolateConfig clears the environment overrides and restores resolvedCfg
// when the test ends.
func isolateConfig(t *testing.T) {
	t.Helper()

	old := resolvedCfg
	t.Cleanup(func() { resolvedCfg = old })

	for _, v := range []string{config.EnvConfig, config.EnvSavesDir, config.EnvBackupDir, config.EnvMode} {
		t.Setenv(v, "")
	}
}

// writeTreeConfig writes a config file pointing at tree and returns its path.
func writeTreeConfig(t *testing.T, tree *testutil.SaveTree, extra string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	content := "saves_dir = \"" + filepath.ToSlash(tree.Saves) + "\"\n" +
		"backup_dir = \"" + filepath.ToSlash(tree.Backups) + "\"\n" +
		"state_dir = \"" + filepath.ToSlash(tree.State) + "\"\n" +
		"log_level = \"error\"\n" + extra

	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, want := range []string{"run", "list", "history", "stop", "config"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestNewRootCmd_PersistentFlags(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{"config", "saves-dir", "backup-dir", "json", "verbose", "quiet"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "missing flag %q", name)
	}
}

func TestNewRootCmd_MutualExclusivity(t *testing.T) {
	isolateConfig(t)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--verbose", "--quiet", "config", "show"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verbose")
}

func TestLoadConfig_FromFile(t *testing.T) {
	isolateConfig(t)

	tree := testutil.NewSaveTree(t)
	path := writeTreeConfig(t, tree, "mode = \"watch\"\n")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", path, "config", "show"})
	require.NoError(t, cmd.Execute())

	require.NotNil(t, resolvedCfg)
	assert.Equal(t, tree.Saves, resolvedCfg.SavesDir)
	assert.Equal(t, tree.Backups, resolvedCfg.BackupDir)
	assert.Equal(t, config.ModeWatch, resolvedCfg.Mode)
	assert.Equal(t, path, resolvedCfg.ConfigPath)
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	isolateConfig(t)

	tree := testutil.NewSaveTree(t)
	path := writeTreeConfig(t, tree, "")
	otherBackups := t.TempDir()

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", path, "--backup-dir", otherBackups, "run", "--once", "--mode", "watch"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, otherBackups, resolvedCfg.BackupDir)
	assert.Equal(t, config.ModeWatch, resolvedCfg.Mode)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	isolateConfig(t)

	tree := testutil.NewSaveTree(t)
	path := writeTreeConfig(t, tree, "")
	envSaves := t.TempDir()

	t.Setenv(config.EnvConfig, path)
	t.Setenv(config.EnvSavesDir, envSaves)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"config", "show"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, envSaves, resolvedCfg.SavesDir)
}

func TestLoadConfig_MissingSavesDirIsFatal(t *testing.T) {
	isolateConfig(t)

	tree := testutil.NewSaveTree(t)
	path := writeTreeConfig(t, tree, "")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", path, "--saves-dir", filepath.Join(tree.Saves, "missing"), "list"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "saves_dir")
}
