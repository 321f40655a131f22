// Package cvsdk wires configuration, credentials and client construction
// for programs talking to a conveyor scheduler. CLI commands use it so
// they don't assemble viper + keyring + backend client by hand.
package cvsdk

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	BaseURL      string        `mapstructure:"baseUrl"`
	APIKey       string        `mapstructure:"apiKey"`
	WorkPool     string        `mapstructure:"workPool"`
	PollInterval time.Duration `mapstructure:"pollInterval"`
	// StateAddr is an optional Redis endpoint for the run journal.
	StateAddr string `mapstructure:"stateAddr"`

	v *viper.Viper // instance-specific viper
}

const (
	EnvPrefix  = "CONVEYOR"
	ConfigName = "conveyor"
	ConfigRoot = ".conveyor"

	BaseURLKey      = "baseUrl"
	APIKeyKey       = "apiKey"
	WorkPoolKey     = "workPool"
	PollIntervalKey = "pollInterval"
	StateAddrKey    = "stateAddr"
)

// LoadConfig creates a new Config instance with its own viper.
// This is the only way to load config (no global state). Resolution
// order: explicit file > project conveyor.yaml > .conveyor/config.yaml
// local override > CONVEYOR_* environment > defaults. Fields the file and
// viper-env layers leave empty fall back to the envconfig loader (see
// env.go) so a pure environment-variable setup works without any file;
// defaults are applied only after that fallback ran.
func LoadConfig(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", cfgFile, err)
		}
	} else {
		// Project config (tracked) - conveyor.yaml in current directory
		for _, name := range []string{"conveyor.yaml", "conveyor.yml", ".conveyor.yaml"} {
			if _, err := os.Stat(name); err == nil {
				v.SetConfigFile(name)
				if err := v.ReadInConfig(); err == nil {
					break
				}
			}
		}

		// Merge local overrides (untracked) - .conveyor/config.yaml
		localConfigPath := filepath.Join(ConfigRoot, "config.yaml")
		if _, err := os.Stat(localConfigPath); err == nil {
			v.SetConfigFile(localConfigPath)
			if err := v.MergeInConfig(); err != nil {
				return nil, fmt.Errorf("merging local config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.v = v
	applyEnvFallback(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// applyDefaults fills whatever no configuration layer provided. Runs
// last so file, viper-env and envconfig values all take precedence.
func applyDefaults(cfg *Config) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:4200"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.WorkPool == "" {
		cfg.WorkPool = "default-pool"
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
}

// Get returns a value from the underlying viper instance.
// Useful for CLI flag binding and dynamic config access.
func (c *Config) Get(key string) interface{} {
	if c.v == nil {
		return nil
	}
	return c.v.Get(key)
}

// GetString returns a string value from the underlying viper instance.
func (c *Config) GetString(key string) string {
	if c.v == nil {
		return ""
	}
	return c.v.GetString(key)
}

// Viper returns the underlying viper instance.
// Useful for advanced config operations.
func (c *Config) Viper() *viper.Viper {
	return c.v
}

// ConfigFileUsed returns the config file that was used (if any).
func (c *Config) ConfigFileUsed() string {
	if c.v == nil {
		return ""
	}
	return c.v.ConfigFileUsed()
}
