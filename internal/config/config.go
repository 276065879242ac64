// Package config loads service settings and solver defaults from a YAML
// file, then applies environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"

	"cvrpsim/internal/aco"
	"cvrpsim/internal/ga"
)

// Server holds the HTTP service settings.
type Server struct {
	Addr               string  `yaml:"addr"`
	DatabaseURL        string  `yaml:"databaseUrl"`
	RedisURL           string  `yaml:"redisUrl"`
	AuthMode           string  `yaml:"authMode"`
	AuthHMACSecret     string  `yaml:"authHmacSecret"`
	AuthJWKSURL        string  `yaml:"authJwksUrl"`
	WebhookMaxAttempts int     `yaml:"webhookMaxAttempts"`
	SnapshotRPS        float64 `yaml:"snapshotRps"`
}

// Solvers holds the default algorithm parameters used when a run request
// leaves them out.
type Solvers struct {
	ACO aco.Config `yaml:"aco"`
	GA  ga.Config  `yaml:"ga"`
}

type Config struct {
	Server  Server  `yaml:"server"`
	Solvers Solvers `yaml:"solvers"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Server: Server{
			Addr:               ":8080",
			AuthMode:           "dev",
			WebhookMaxAttempts: 10,
		},
		Solvers: Solvers{ACO: aco.DefaultConfig(), GA: ga.DefaultConfig()},
	}
}

// Load reads path over the defaults (an empty path skips the file) and
// applies env overrides. Solver sections are checked with their Validate.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Solvers.ACO.Validate(); err != nil {
		return Config{}, fmt.Errorf("solvers.aco: %w", err)
	}
	if err := cfg.Solvers.GA.Validate(); err != nil {
		return Config{}, fmt.Errorf("solvers.ga: %w", err)
	}
	return cfg, nil
}

// FromEnv loads the file named by CVRPSIM_CONFIG, if any.
func FromEnv() (Config, error) {
	return Load(os.Getenv("CVRPSIM_CONFIG"))
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Addr = ":" + strings.TrimPrefix(v, ":")
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Server.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Server.RedisURL = v
	}
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("AUTH_MODE"))); v != "" {
		c.Server.AuthMode = v
	}
	if v := os.Getenv("AUTH_HMAC_SECRET"); v != "" {
		c.Server.AuthHMACSecret = v
	}
	if v := os.Getenv("AUTH_JWKS_URL"); v != "" {
		c.Server.AuthJWKSURL = v
	}
	if v := os.Getenv("WEBHOOK_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("WEBHOOK_MAX_ATTEMPTS: want a positive integer, got %q", v)
		}
		c.Server.WebhookMaxAttempts = n
	}
	if v := os.Getenv("SNAPSHOT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return fmt.Errorf("SNAPSHOT_RPS: want a non-negative number, got %q", v)
		}
		c.Server.SnapshotRPS = f
	}
	return nil
}
