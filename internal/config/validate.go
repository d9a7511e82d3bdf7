package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Validation range constants.
const (
	minCheckWorkers    = 1
	maxCheckWorkers    = 32
	minLogRetention    = 1
	minPollInterval    = time.Second
	minSafetyScan      = 10 * time.Second
	maxMtimeTolerance  = time.Minute
	maxWatchDebounce   = time.Minute
	minFailureCooldown = time.Second
	errDurationPattern = "%s: %w"
)

// Validate checks raw config file values and returns every error found.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateObserver(&cfg.ObserverConfig)...)
	errs = append(errs, validateSafety(&cfg.SafetyConfig)...)
	errs = append(errs, validateLogging(&cfg.LoggingConfig)...)

	return errors.Join(errs...)
}

// ValidateResolved checks the final merged configuration, after env and
// CLI overrides. The saves directory must exist and be readable: nothing
// useful can happen without it.
func ValidateResolved(r *Resolved) error {
	var errs []error

	errs = append(errs, validateMode(r.Mode)...)

	for _, p := range []struct{ key, path string }{
		{"saves_dir", r.SavesDir},
		{"backup_dir", r.BackupDir},
		{"state_dir", r.StateDir},
	} {
		switch {
		case p.path == "":
			errs = append(errs, fmt.Errorf("%s: must be set", p.key))
		case !filepath.IsAbs(p.path):
			errs = append(errs, fmt.Errorf("%s: must be absolute after expansion, got %q", p.key, p.path))
		}
	}

	if r.SavesDir != "" && r.BackupDir != "" && filepath.Clean(r.SavesDir) == filepath.Clean(r.BackupDir) {
		errs = append(errs, errors.New("backup_dir: must differ from saves_dir"))
	}

	if r.SavesDir != "" {
		if err := checkReadableDir(r.SavesDir); err != nil {
			errs = append(errs, fmt.Errorf("saves_dir: %w", err))
		}
	}

	return errors.Join(errs...)
}

func checkReadableDir(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}

	return nil
}

func validateObserver(o *ObserverConfig) []error {
	var errs []error

	errs = append(errs, validateMode(o.Mode)...)

	if d, err := time.ParseDuration(o.PollInterval); err != nil {
		errs = append(errs, fmt.Errorf(errDurationPattern, "poll_interval", err))
	} else if d < minPollInterval {
		errs = append(errs, fmt.Errorf("poll_interval: must be >= %s, got %s", minPollInterval, d))
	}

	// Zero disables the safety scan.
	if d, err := time.ParseDuration(o.SafetyScanInterval); err != nil {
		errs = append(errs, fmt.Errorf(errDurationPattern, "safety_scan_interval", err))
	} else if d != 0 && d < minSafetyScan {
		errs = append(errs, fmt.Errorf("safety_scan_interval: must be 0 or >= %s, got %s", minSafetyScan, d))
	}

	if d, err := time.ParseDuration(o.MtimeTolerance); err != nil {
		errs = append(errs, fmt.Errorf(errDurationPattern, "mtime_tolerance", err))
	} else if d < 0 || d > maxMtimeTolerance {
		errs = append(errs, fmt.Errorf("mtime_tolerance: must be between 0 and %s, got %s", maxMtimeTolerance, d))
	}

	// Zero hands every notification to the registry as it arrives.
	if d, err := time.ParseDuration(o.WatchDebounce); err != nil {
		errs = append(errs, fmt.Errorf(errDurationPattern, "watch_debounce", err))
	} else if d < 0 || d > maxWatchDebounce {
		errs = append(errs, fmt.Errorf("watch_debounce: must be between 0 and %s, got %s", maxWatchDebounce, d))
	}

	if o.CheckWorkers < minCheckWorkers || o.CheckWorkers > maxCheckWorkers {
		errs = append(errs, fmt.Errorf("check_workers: must be between %d and %d, got %d",
			minCheckWorkers, maxCheckWorkers, o.CheckWorkers))
	}

	return errs
}

func validateMode(mode string) []error {
	if mode != ModePoll && mode != ModeWatch {
		return []error{fmt.Errorf("mode: must be one of poll, watch; got %q", mode)}
	}

	return nil
}

func validateSafety(s *SafetyConfig) []error {
	var errs []error

	if _, err := ParseSize(s.MinFreeSpace); err != nil {
		errs = append(errs, fmt.Errorf("min_free_space: %w", err))
	}

	if s.FailureThreshold < 1 {
		errs = append(errs, fmt.Errorf("failure_threshold: must be >= 1, got %d", s.FailureThreshold))
	}

	if d, err := time.ParseDuration(s.FailureCooldown); err != nil {
		errs = append(errs, fmt.Errorf(errDurationPattern, "failure_cooldown", err))
	} else if d < minFailureCooldown {
		errs = append(errs, fmt.Errorf("failure_cooldown: must be >= %s, got %s", minFailureCooldown, d))
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	if l.LogRetentionDays < minLogRetention {
		errs = append(errs, fmt.Errorf("log_retention_days: must be >= %d, got %d",
			minLogRetention, l.LogRetentionDays))
	}

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}
