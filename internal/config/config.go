package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable
const Prefix = "MAXDESK"

// AppName names the per-user data directory
const AppName = "maxdesk"

// Config holds all application configuration
type Config struct {
	DataDir       string        `envconfig:"DATA_DIR"`
	Store         string        `envconfig:"STORE" default:"file"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"30s"`
	RetryInterval time.Duration `envconfig:"RETRY_INTERVAL" default:"5m"`
	SettleDelay   time.Duration `envconfig:"SETTLE_DELAY" default:"250ms"`
	ProbeTimeout  time.Duration `envconfig:"PROBE_TIMEOUT" default:"100ms"`
	MinBuild      int           `envconfig:"MIN_BUILD" default:"22000"`
}

// Load reads the environment, filling in defaults
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}
	return &cfg, nil
}

// Override applies command line values; empty values leave the config as is
func (c *Config) Override(dataDir, store string) {
	if dataDir != "" {
		c.DataDir = dataDir
	}
	if store != "" {
		c.Store = store
	}
}

// Validate rejects settings the app cannot run with
func (c *Config) Validate() error {
	var errs []error
	switch c.Store {
	case "file", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown store %q (supported: file, sqlite)", c.Store))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data dir is empty"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("sweep interval must be positive, got %s", c.SweepInterval))
	}
	if c.RetryInterval <= 0 {
		errs = append(errs, fmt.Errorf("retry interval must be positive, got %s", c.RetryInterval))
	}
	if c.SettleDelay < 0 {
		errs = append(errs, fmt.Errorf("settle delay must not be negative, got %s", c.SettleDelay))
	}
	if c.ProbeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("probe timeout must be positive, got %s", c.ProbeTimeout))
	}
	if c.MinBuild <= 0 {
		errs = append(errs, fmt.Errorf("min build must be positive, got %d", c.MinBuild))
	}
	return errors.Join(errs...)
}

// DefaultDataDir returns the per-user data directory.
// On Windows this is %LOCALAPPDATA%\maxdesk.
func DefaultDataDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, AppName)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "."+AppName)
	}
	return AppName
}
