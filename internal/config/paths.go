package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Platform identifiers.
const (
	platformLinux   = "linux"
	platformDarwin  = "darwin"
	platformWindows = "windows"
)

// Application directory name used across all platforms.
const appName = "savescum"

// Config file name.
const configFileName = "config.toml"

// Journal database file name inside the state directory.
const journalFileName = "journal.db"

// PID file name inside the state directory.
const pidFileName = "savescum.pid"

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/savescum).
// On macOS, uses ~/Library/Application Support/savescum.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_CONFIG_HOME", home, ".config")
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultDataDir returns the platform-specific directory for application
// data: the journal, the PID file, and by default the backups.
// On Linux, respects XDG_DATA_HOME (defaults to ~/.local/share/savescum).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_DATA_HOME", home, filepath.Join(".local", "share"))
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

func xdgDir(envVar, home, fallback string) string {
	if xdg := os.Getenv(envVar); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, fallback, appName)
}

// DefaultSavesDir returns where Dominions 6 keeps its saved games:
// %APPDATA%\Dominions6\savedgames on Windows, ~/.dominions6/savedgames
// elsewhere.
func DefaultSavesDir() string {
	if runtime.GOOS == platformWindows {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Dominions6", "savedgames")
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".dominions6", "savedgames")
}

// DefaultConfigPath returns the full path to the default config file. It
// is the fallback when neither SAVESCUM_CONFIG nor --config is given.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// JournalPath returns the journal database path inside a state directory.
func JournalPath(stateDir string) string {
	return filepath.Join(stateDir, journalFileName)
}

// PIDFilePath returns the PID file path inside a state directory.
func PIDFilePath(stateDir string) string {
	return filepath.Join(stateDir, pidFileName)
}

// expandTilde replaces a leading "~/" with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[2:])
}
