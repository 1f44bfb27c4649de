// Package config loads the matcalc CLI configuration.
//
// Precedence, lowest to highest: defaults, config file, environment
// (MATCALC_DIR, MATCALC_LIBRARY, MATCALC_LOG_LEVEL), command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/arthursn/gomatcalc/internal/logging"
)

// Environment variables read by ApplyEnv.
const (
	EnvApplicationDirectory = "MATCALC_DIR"
	EnvLibrary              = "MATCALC_LIBRARY"
	EnvLogLevel             = "MATCALC_LOG_LEVEL"
)

// Config represents the matcalc configuration file.
type Config struct {
	// ApplicationDirectory is the MatCalc installation directory.
	ApplicationDirectory string `yaml:"application_directory"`
	// Library overrides discovery of the mc_core file.
	Library string `yaml:"library"`
	// Preload lists libraries opened before mc_core.
	Preload []string `yaml:"preload"`
	// LockFile, when set, guards the installation against concurrent
	// sessions from other processes.
	LockFile string `yaml:"lock_file"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	// Quiet discards the engine's own stdout output.
	Quiet bool `yaml:"quiet"`
}

// NewConfig returns a Config with defaults applied.
func NewConfig() *Config {
	log := logging.DefaultConfig()
	return &Config{
		LogLevel:  log.Level,
		LogFormat: log.Format,
	}
}

// DefaultPath returns the per-user config file location, or "" if the
// user config directory is unknown.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "matcalc", "config.yaml")
}

// Load reads path over the defaults. When explicit is false a missing file
// is not an error.
func Load(path string, explicit bool) (*Config, error) {
	cfg := NewConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvApplicationDirectory); v != "" {
		c.ApplicationDirectory = v
	}
	if v := getenv(EnvLibrary); v != "" {
		c.Library = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// Validate checks the values that can be checked without touching the
// engine.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}
