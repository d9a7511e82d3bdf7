package config

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEffective(t *testing.T) {
	r := &Resolved{
		ConfigPath:         "/home/u/.config/savescum/config.toml",
		SavesDir:           "/home/u/.dominions6/savedgames",
		BackupDir:          "/backups",
		StateDir:           "/state",
		CopyStaticFiles:    true,
		Mode:               ModeWatch,
		PollInterval:       10 * time.Second,
		SafetyScanInterval: 5 * time.Minute,
		MtimeTolerance:     time.Second,
		WatchDebounce:      2 * time.Second,
		CheckWorkers:       4,
		MinFreeSpace:       100_000_000,
		FailureThreshold:   3,
		FailureCooldown:    10 * time.Minute,
		Logging:            LoggingConfig{LogLevel: "info", LogFormat: "auto", LogRetentionDays: 30},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(r, &buf))

	out := buf.String()
	assert.Contains(t, out, `saves_dir            = "/home/u/.dominions6/savedgames"`)
	assert.Contains(t, out, `mode                 = "watch"`)
	assert.Contains(t, out, `safety_scan_interval = "5m0s"`)
	assert.Contains(t, out, `copy_static_files    = true`)
	assert.Contains(t, out, `min_free_space       = "100000000"`)
	assert.Contains(t, out, `watch_debounce       = "2s"`)
	assert.Contains(t, out, `failure_cooldown     = "10m0s"`)
	assert.Contains(t, out, "config.toml")
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestRenderEffective_WriteError(t *testing.T) {
	err := RenderEffective(&Resolved{}, failWriter{})
	assert.Error(t, err)
}
