package cvsdk

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvConfig is the environment-variable view of the client configuration,
// for deployments that configure everything through the process
// environment (CI jobs, containers) rather than config files.
type EnvConfig struct {
	APIURL       string        `envconfig:"API_URL"`
	APIKey       string        `envconfig:"API_KEY"`
	WorkPool     string        `envconfig:"WORK_POOL"`
	PollInterval time.Duration `envconfig:"POLL_INTERVAL"`
	StateAddr    string        `envconfig:"STATE_ADDR"`
}

// LoadEnv reads CONVEYOR_* variables, loading a .env file first when one
// exists in the working directory.
func LoadEnv() (*EnvConfig, error) {
	// Best effort; absence of a .env file is the normal case.
	_ = godotenv.Load()

	var cfg EnvConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading environment config: %w", err)
	}
	return &cfg, nil
}

// applyEnvFallback fills Config fields the file/viper layer left empty.
func applyEnvFallback(cfg *Config) {
	env, err := LoadEnv()
	if err != nil {
		return
	}
	if cfg.BaseURL == "" && env.APIURL != "" {
		cfg.BaseURL = env.APIURL
	}
	if cfg.APIKey == "" {
		cfg.APIKey = env.APIKey
	}
	if cfg.WorkPool == "" && env.WorkPool != "" {
		cfg.WorkPool = env.WorkPool
	}
	if cfg.PollInterval == 0 && env.PollInterval > 0 {
		cfg.PollInterval = env.PollInterval
	}
	if cfg.StateAddr == "" {
		cfg.StateAddr = env.StateAddr
	}
}

// MaskSecret hides the middle of a credential for log output.
func MaskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

// Print writes the effective configuration through fmtr, masking secrets.
func (c *Config) Print(fmtr func(string, ...interface{})) {
	fmtr("Configuration:\n")
	fmtr("  Base URL: %s\n", c.BaseURL)
	fmtr("  API Key: %s\n", MaskSecret(c.APIKey))
	fmtr("  Work Pool: %s\n", c.WorkPool)
	fmtr("  Poll Interval: %s\n", c.PollInterval)
	if c.StateAddr != "" {
		fmtr("  State Store: %s\n", c.StateAddr)
	} else {
		fmtr("  State Store: disabled\n")
	}
}
