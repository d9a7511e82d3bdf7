// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for savescum. Values resolve through
// four layers: defaults -> config file -> environment -> CLI flags.
package config

import "time"

// Operating modes.
const (
	ModePoll  = "poll"
	ModeWatch = "watch"
)

// Config is the top-level configuration structure parsed from a TOML file.
// All keys are flat; the embedded groups only organize the Go side.
type Config struct {
	PathsConfig
	ObserverConfig
	SafetyConfig
	LoggingConfig
}

// PathsConfig locates the saved games, the backups, and local state.
type PathsConfig struct {
	SavesDir        string `toml:"saves_dir"`
	BackupDir       string `toml:"backup_dir"`
	StateDir        string `toml:"state_dir"`
	CopyStaticFiles bool   `toml:"copy_static_files"`
}

// ObserverConfig selects how saves are noticed and how aggressively they are
// checked.
type ObserverConfig struct {
	Mode               string `toml:"mode"`
	PollInterval       string `toml:"poll_interval"`
	SafetyScanInterval string `toml:"safety_scan_interval"`
	MtimeTolerance     string `toml:"mtime_tolerance"`
	WatchDebounce      string `toml:"watch_debounce"`
	CheckWorkers       int    `toml:"check_workers"`
}

// SafetyConfig guards the backup volume and bounds retries of games that
// keep failing.
type SafetyConfig struct {
	MinFreeSpace     string `toml:"min_free_space"`
	FailureThreshold int    `toml:"failure_threshold"`
	FailureCooldown  string `toml:"failure_cooldown"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel         string `toml:"log_level"`
	LogFile          string `toml:"log_file"`
	LogFormat        string `toml:"log_format"`
	LogRetentionDays int    `toml:"log_retention_days"`
}

// Resolved is the final configuration with all layers applied, paths
// expanded, and string values parsed.
type Resolved struct {
	ConfigPath string

	SavesDir        string
	BackupDir       string
	StateDir        string
	CopyStaticFiles bool

	Mode               string
	PollInterval       time.Duration
	SafetyScanInterval time.Duration
	MtimeTolerance     time.Duration
	WatchDebounce      time.Duration
	CheckWorkers       int

	MinFreeSpace     int64
	FailureThreshold int
	FailureCooldown  time.Duration

	Logging LoggingConfig
}
