package config

import "path/filepath"

// Default values for configuration options, the first layer of the
// override chain.
const (
	defaultMode               = ModePoll
	defaultPollInterval       = "10s"
	defaultSafetyScanInterval = "5m"
	defaultMtimeTolerance     = "1s"
	defaultWatchDebounce      = "2s"
	defaultCheckWorkers       = 4
	defaultMinFreeSpace       = "100MB"
	defaultFailureThreshold   = 3
	defaultFailureCooldown    = "10m"
	defaultLogLevel           = "info"
	defaultLogFormat          = "auto"
	defaultLogRetentionDays   = 30
	backupDirName             = "backups"
)

// DefaultConfig returns a Config populated with all default values. It is
// both the starting point for TOML decoding and the fallback when no config
// file exists.
func DefaultConfig() *Config {
	return &Config{
		PathsConfig:    defaultPathsConfig(),
		ObserverConfig: defaultObserverConfig(),
		SafetyConfig:   defaultSafetyConfig(),
		LoggingConfig:  defaultLoggingConfig(),
	}
}

func defaultPathsConfig() PathsConfig {
	var backups string
	if data := DefaultDataDir(); data != "" {
		backups = filepath.Join(data, backupDirName)
	}

	return PathsConfig{
		SavesDir:        DefaultSavesDir(),
		BackupDir:       backups,
		StateDir:        DefaultDataDir(),
		CopyStaticFiles: true,
	}
}

func defaultObserverConfig() ObserverConfig {
	return ObserverConfig{
		Mode:               defaultMode,
		PollInterval:       defaultPollInterval,
		SafetyScanInterval: defaultSafetyScanInterval,
		MtimeTolerance:     defaultMtimeTolerance,
		WatchDebounce:      defaultWatchDebounce,
		CheckWorkers:       defaultCheckWorkers,
	}
}

func defaultSafetyConfig() SafetyConfig {
	return SafetyConfig{
		MinFreeSpace:     defaultMinFreeSpace,
		FailureThreshold: defaultFailureThreshold,
		FailureCooldown:  defaultFailureCooldown,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:         defaultLogLevel,
		LogFormat:        defaultLogFormat,
		LogRetentionDays: defaultLogRetentionDays,
	}
}
