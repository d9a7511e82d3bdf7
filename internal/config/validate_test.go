package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Defaults(t *testing.T) {
	require.NoError(t, Validate(DefaultConfig()))
}

func TestValidate_Observer(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad mode", func(c *Config) { c.Mode = "push" }, "mode"},
		{"unparseable poll", func(c *Config) { c.PollInterval = "often" }, "poll_interval"},
		{"poll too short", func(c *Config) { c.PollInterval = "100ms" }, "poll_interval"},
		{"safety too short", func(c *Config) { c.SafetyScanInterval = "1s" }, "safety_scan_interval"},
		{"negative tolerance", func(c *Config) { c.MtimeTolerance = "-1s" }, "mtime_tolerance"},
		{"huge tolerance", func(c *Config) { c.MtimeTolerance = "1h" }, "mtime_tolerance"},
		{"no workers", func(c *Config) { c.CheckWorkers = 0 }, "check_workers"},
		{"too many workers", func(c *Config) { c.CheckWorkers = 1000 }, "check_workers"},
		{"negative debounce", func(c *Config) { c.WatchDebounce = "-1s" }, "watch_debounce"},
		{"huge debounce", func(c *Config) { c.WatchDebounce = "5m" }, "watch_debounce"},
		{"bad free space", func(c *Config) { c.MinFreeSpace = "lots" }, "min_free_space"},
		{"no failure threshold", func(c *Config) { c.FailureThreshold = 0 }, "failure_threshold"},
		{"unparseable cooldown", func(c *Config) { c.FailureCooldown = "a while" }, "failure_cooldown"},
		{"cooldown too short", func(c *Config) { c.FailureCooldown = "10ms" }, "failure_cooldown"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"retention zero", func(c *Config) { c.LogRetentionDays = 0 }, "log_retention_days"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_SafetyScanZeroDisables(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SafetyScanInterval = "0"

	assert.NoError(t, Validate(cfg))
}

func TestValidate_WatchDebounceZeroDisables(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WatchDebounce = "0s"

	assert.NoError(t, Validate(cfg))
}

func validResolved(t *testing.T) *Resolved {
	t.Helper()

	return &Resolved{
		SavesDir:  t.TempDir(),
		BackupDir: t.TempDir(),
		StateDir:  t.TempDir(),
		Mode:      ModePoll,
	}
}

func TestValidateResolved(t *testing.T) {
	require.NoError(t, ValidateResolved(validResolved(t)))

	r := validResolved(t)
	r.BackupDir = "relative/backups"
	assert.ErrorContains(t, ValidateResolved(r), "backup_dir: must be absolute")

	r = validResolved(t)
	r.StateDir = ""
	assert.ErrorContains(t, ValidateResolved(r), "state_dir: must be set")

	r = validResolved(t)
	r.BackupDir = r.SavesDir
	assert.ErrorContains(t, ValidateResolved(r), "must differ")

	r = validResolved(t)
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	r.SavesDir = file
	assert.ErrorContains(t, ValidateResolved(r), "not a directory")
}
