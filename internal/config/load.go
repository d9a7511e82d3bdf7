package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// CLIOverrides holds flag values. Nil pointers were not given.
type CLIOverrides struct {
	ConfigPath string
	SavesDir   *string
	BackupDir  *string
	Mode       *string
}

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal, with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain
// defaults -> config file -> environment -> CLI flags. The result is
// validated, including that the saves directory is readable.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if env.SavesDir != "" {
		cfg.SavesDir = env.SavesDir
	}

	if env.BackupDir != "" {
		cfg.BackupDir = env.BackupDir
	}

	if env.Mode != "" {
		cfg.Mode = env.Mode
	}

	if cli.SavesDir != nil {
		cfg.SavesDir = *cli.SavesDir
	}

	if cli.BackupDir != nil {
		cfg.BackupDir = *cli.BackupDir
	}

	if cli.Mode != nil {
		cfg.Mode = *cli.Mode
	}

	resolved, err := resolve(cfg)
	if err != nil {
		return nil, err
	}

	resolved.ConfigPath = cfgPath

	if err := ValidateResolved(resolved); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return resolved, nil
}

// resolve expands paths and parses string values. cfg has passed Validate,
// so parse errors here only come from env or CLI overrides.
func resolve(cfg *Config) (*Resolved, error) {
	poll, err := time.ParseDuration(cfg.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("poll_interval: %w", err)
	}

	safety, err := time.ParseDuration(cfg.SafetyScanInterval)
	if err != nil {
		return nil, fmt.Errorf("safety_scan_interval: %w", err)
	}

	tolerance, err := time.ParseDuration(cfg.MtimeTolerance)
	if err != nil {
		return nil, fmt.Errorf("mtime_tolerance: %w", err)
	}

	debounce, err := time.ParseDuration(cfg.WatchDebounce)
	if err != nil {
		return nil, fmt.Errorf("watch_debounce: %w", err)
	}

	cooldown, err := time.ParseDuration(cfg.FailureCooldown)
	if err != nil {
		return nil, fmt.Errorf("failure_cooldown: %w", err)
	}

	minFree, err := ParseSize(cfg.MinFreeSpace)
	if err != nil {
		return nil, fmt.Errorf("min_free_space: %w", err)
	}

	logging := cfg.LoggingConfig
	logging.LogFile = expandTilde(logging.LogFile)

	return &Resolved{
		SavesDir:           expandTilde(cfg.SavesDir),
		BackupDir:          expandTilde(cfg.BackupDir),
		StateDir:           expandTilde(cfg.StateDir),
		CopyStaticFiles:    cfg.CopyStaticFiles,
		Mode:               cfg.Mode,
		PollInterval:       poll,
		SafetyScanInterval: safety,
		MtimeTolerance:     tolerance,
		WatchDebounce:      debounce,
		CheckWorkers:       cfg.CheckWorkers,
		MinFreeSpace:       minFree,
		FailureThreshold:   cfg.FailureThreshold,
		FailureCooldown:    cooldown,
		Logging:            logging,
	}, nil
}
