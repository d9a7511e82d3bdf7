package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Environment variable names for overrides.
const (
	EnvConfig    = "SAVESCUM_CONFIG"
	EnvSavesDir  = "SAVESCUM_SAVES_DIR"
	EnvBackupDir = "SAVESCUM_BACKUP_DIR"
	EnvMode      = "SAVESCUM_MODE"
)

// EnvOverrides holds values read from environment variables. Empty fields
// were not set.
type EnvOverrides struct {
	ConfigPath string `env:"SAVESCUM_CONFIG"`
	SavesDir   string `env:"SAVESCUM_SAVES_DIR"`
	BackupDir  string `env:"SAVESCUM_BACKUP_DIR"`
	Mode       string `env:"SAVESCUM_MODE"`
}

// ReadEnvOverrides reads the override variables from the process
// environment.
func ReadEnvOverrides() (EnvOverrides, error) {
	var e EnvOverrides
	if err := env.Parse(&e); err != nil {
		return EnvOverrides{}, fmt.Errorf("parse env: %w", err)
	}

	return e, nil
}
