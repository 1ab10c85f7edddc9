package cli

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config carries the environment-supplied settings the operational
// commands need to reach the backend and the local replica.
type Config struct {
	APIURL    string `env:"CONCORD_API_URL"`
	APIKey    string `env:"CONCORD_API_KEY"`
	UserID    string `env:"CONCORD_USER_ID"`
	DBPath    string `env:"CONCORD_DB_PATH" envDefault:"concord.db"`
	ProbeAddr string `env:"CONCORD_PROBE_ADDR" envDefault:"1.1.1.1:443"`
}

// LoadConfig reads configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, nil
}

// requireBackend checks the settings needed to talk to the backend.
func (c Config) requireBackend() error {
	if c.APIURL == "" {
		return NewExitError(ExitCommandError, "CONCORD_API_URL is not set")
	}
	if c.UserID == "" {
		return NewExitError(ExitCommandError, "CONCORD_USER_ID is not set")
	}
	return nil
}
