package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)

	return path
}

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeTestConfig(t, `
saves_dir = "/games/savedgames"
backup_dir = "/backups/dom6"
state_dir = "/var/lib/savescum"
copy_static_files = false

mode = "watch"
poll_interval = "30s"
safety_scan_interval = "10m"
mtime_tolerance = "2s"
watch_debounce = "500ms"
check_workers = 8

min_free_space = "2GB"
failure_threshold = 5
failure_cooldown = "1h"

log_level = "debug"
log_file = "/tmp/savescum.log"
log_format = "json"
log_retention_days = 7
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/games/savedgames", cfg.SavesDir)
	assert.Equal(t, "/backups/dom6", cfg.BackupDir)
	assert.Equal(t, "/var/lib/savescum", cfg.StateDir)
	assert.False(t, cfg.CopyStaticFiles)
	assert.Equal(t, ModeWatch, cfg.Mode)
	assert.Equal(t, "30s", cfg.PollInterval)
	assert.Equal(t, "10m", cfg.SafetyScanInterval)
	assert.Equal(t, "2s", cfg.MtimeTolerance)
	assert.Equal(t, 8, cfg.CheckWorkers)
	assert.Equal(t, "500ms", cfg.WatchDebounce)
	assert.Equal(t, "2GB", cfg.MinFreeSpace)
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.Equal(t, "1h", cfg.FailureCooldown)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/savescum.log", cfg.LogFile)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 7, cfg.LogRetentionDays)
}

func TestLoad_PartialConfigKeepsDefaults(t *testing.T) {
	path := writeTestConfig(t, `mode = "watch"`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ModeWatch, cfg.Mode)
	assert.Equal(t, defaultPollInterval, cfg.PollInterval)
	assert.Equal(t, defaultCheckWorkers, cfg.CheckWorkers)
	assert.True(t, cfg.CopyStaticFiles)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeTestConfig(t, `mode = `)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_ValidationErrorsAccumulate(t *testing.T) {
	path := writeTestConfig(t, `
mode = "sometimes"
check_workers = 0
log_level = "loud"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mode")
	assert.Contains(t, err.Error(), "check_workers")
	assert.Contains(t, err.Error(), "log_level")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestResolve_Layers(t *testing.T) {
	saves := t.TempDir()
	envSaves := t.TempDir()
	cliSaves := t.TempDir()
	backups := t.TempDir()

	path := writeTestConfig(t, `
saves_dir = "`+filepath.ToSlash(saves)+`"
backup_dir = "`+filepath.ToSlash(backups)+`"
state_dir = "`+filepath.ToSlash(t.TempDir())+`"
poll_interval = "15s"
`)

	// File only.
	r, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(saves), filepath.Clean(r.SavesDir))
	assert.Equal(t, 15*time.Second, r.PollInterval)
	assert.Equal(t, time.Second, r.MtimeTolerance)
	assert.Equal(t, int64(100_000_000), r.MinFreeSpace)
	assert.Equal(t, 2*time.Second, r.WatchDebounce)
	assert.Equal(t, 3, r.FailureThreshold)
	assert.Equal(t, 10*time.Minute, r.FailureCooldown)
	assert.Equal(t, path, r.ConfigPath)

	// Env beats file.
	r, err = Resolve(EnvOverrides{ConfigPath: path, SavesDir: envSaves, Mode: ModeWatch}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, envSaves, r.SavesDir)
	assert.Equal(t, ModeWatch, r.Mode)

	// CLI beats env.
	mode := ModePoll
	r, err = Resolve(
		EnvOverrides{ConfigPath: path, SavesDir: envSaves, Mode: ModeWatch},
		CLIOverrides{SavesDir: &cliSaves, Mode: &mode},
	)
	require.NoError(t, err)
	assert.Equal(t, cliSaves, r.SavesDir)
	assert.Equal(t, ModePoll, r.Mode)
}

func TestResolve_CLIConfigPathWins(t *testing.T) {
	envPath := writeTestConfig(t, `bogus_key = 1`)
	cliPath := writeTestConfig(t, `
saves_dir = "`+filepath.ToSlash(t.TempDir())+`"
backup_dir = "`+filepath.ToSlash(t.TempDir())+`"
state_dir = "`+filepath.ToSlash(t.TempDir())+`"
`)

	r, err := Resolve(EnvOverrides{ConfigPath: envPath}, CLIOverrides{ConfigPath: cliPath})
	require.NoError(t, err)
	assert.Equal(t, cliPath, r.ConfigPath)
}

func TestResolve_UnreadableSavesDirIsFatal(t *testing.T) {
	path := writeTestConfig(t, `
saves_dir = "`+filepath.ToSlash(filepath.Join(t.TempDir(), "missing"))+`"
backup_dir = "`+filepath.ToSlash(t.TempDir())+`"
state_dir = "`+filepath.ToSlash(t.TempDir())+`"
`)

	_, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "saves_dir")
}

func TestResolve_InvalidModeOverride(t *testing.T) {
	path := writeTestConfig(t, `
saves_dir = "`+filepath.ToSlash(t.TempDir())+`"
backup_dir = "`+filepath.ToSlash(t.TempDir())+`"
state_dir = "`+filepath.ToSlash(t.TempDir())+`"
`)

	_, err := Resolve(EnvOverrides{ConfigPath: path, Mode: "inotify"}, CLIOverrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mode")
}

func TestResolve_ExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	path := writeTestConfig(t, `
saves_dir = "`+filepath.ToSlash(t.TempDir())+`"
backup_dir = "~/dom6-backups"
state_dir = "`+filepath.ToSlash(t.TempDir())+`"
log_file = "~/savescum.log"
`)

	r, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "dom6-backups"), r.BackupDir)
	assert.Equal(t, filepath.Join(home, "savescum.log"), r.Logging.LogFile)
}
