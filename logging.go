package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log file rotation limits. Age comes from log_retention_days.
const (
	logMaxSizeMB  = 20
	logMaxBackups = 5
)

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win. The returned function
// closes the log file, if any.
func buildLogger() (*slog.Logger, func()) {
	level := slog.LevelInfo
	format := "auto"

	var out io.Writer = os.Stderr

	closeLog := func() {}

	if resolvedCfg != nil {
		level = parseLevel(resolvedCfg.Logging.LogLevel)
		format = resolvedCfg.Logging.LogFormat

		if resolvedCfg.Logging.LogFile != "" {
			lj := &lumberjack.Logger{
				Filename:   resolvedCfg.Logging.LogFile,
				MaxSize:    logMaxSizeMB,
				MaxBackups: logMaxBackups,
				MaxAge:     resolvedCfg.Logging.LogRetentionDays,
				Compress:   true,
			}
			out = lj
			closeLog = func() { lj.Close() }
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(newLogHandler(out, format, level)), closeLog
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogHandler picks the handler for format. "auto" means text on a
// terminal and JSON everywhere else, log files included.
func newLogHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	switch format {
	case "json":
		return slog.NewJSONHandler(w, opts)
	case "text":
		return slog.NewTextHandler(w, opts)
	}

	if isTerminal(w) {
		return slog.NewTextHandler(w, opts)
	}

	return slog.NewJSONHandler(w, opts)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
