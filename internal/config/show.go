package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration to w as annotated TOML,
// showing the values in force after every override layer.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", displayPath(r.ConfigPath))

	ew.printf("# paths\n")
	ew.printf("saves_dir            = %q\n", r.SavesDir)
	ew.printf("backup_dir           = %q\n", r.BackupDir)
	ew.printf("state_dir            = %q\n", r.StateDir)
	ew.printf("copy_static_files    = %t\n", r.CopyStaticFiles)
	ew.printf("\n")

	ew.printf("# observer\n")
	ew.printf("mode                 = %q\n", r.Mode)
	ew.printf("poll_interval        = %q\n", r.PollInterval.String())
	ew.printf("safety_scan_interval = %q\n", r.SafetyScanInterval.String())
	ew.printf("mtime_tolerance      = %q\n", r.MtimeTolerance.String())
	ew.printf("watch_debounce       = %q\n", r.WatchDebounce.String())
	ew.printf("check_workers        = %d\n", r.CheckWorkers)
	ew.printf("\n")

	ew.printf("# safety\n")
	ew.printf("min_free_space       = \"%d\"\n", r.MinFreeSpace)
	ew.printf("failure_threshold    = %d\n", r.FailureThreshold)
	ew.printf("failure_cooldown     = %q\n", r.FailureCooldown.String())
	ew.printf("\n")

	ew.printf("# logging\n")
	ew.printf("log_level            = %q\n", r.Logging.LogLevel)
	ew.printf("log_file             = %q\n", r.Logging.LogFile)
	ew.printf("log_format           = %q\n", r.Logging.LogFormat)
	ew.printf("log_retention_days   = %d\n", r.Logging.LogRetentionDays)

	return ew.err
}

func displayPath(p string) string {
	if p == "" {
		return "none, defaults only"
	}

	return p
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
