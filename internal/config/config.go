// Package config loads the depositd configuration from an optional YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config is the full depositd configuration.
type Config struct {
	Listen         string        `yaml:"listen"`
	RPCURL         string        `yaml:"rpc_url"`
	DepositAddress string        `yaml:"deposit_address"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	Store          StoreConfig   `yaml:"store"`
	RateLimit      RateConfig    `yaml:"rate_limit"`
	Reconciler     SweepConfig   `yaml:"reconciler"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
}

// StoreConfig selects and configures the deposit ledger backend.
type StoreConfig struct {
	Backend     string `yaml:"backend"`
	PostgresDSN string `yaml:"postgres_dsn"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisDB     int    `yaml:"redis_db"`
}

// RateConfig configures the per-client HTTP rate limiter.
type RateConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

// SweepConfig configures the background chain reconciliation sweep.
type SweepConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Interval  time.Duration `yaml:"interval"`
	ScanLimit int           `yaml:"scan_limit"`
}

// Default returns the baseline configuration before file and environment
// overrides.
func Default() Config {
	return Config{
		Listen:         ":8080",
		RPCURL:         "https://api.mainnet-beta.solana.com",
		AllowedOrigins: []string{"*"},
		Store: StoreConfig{
			Backend: StoreMemory,
		},
		RateLimit: RateConfig{
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Reconciler: SweepConfig{
			Enabled:   true,
			Interval:  time.Minute,
			ScanLimit: 1000,
		},
		ShutdownGrace: 10 * time.Second,
	}
}

// Load builds the configuration from defaults, the YAML file at path (when
// non-empty) and environment variables, in that order of precedence.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Listen, "DEPOSITD_LISTEN")
	setString(&c.RPCURL, "SOLANA_RPC_URL")
	setString(&c.DepositAddress, "DEPOSIT_ADDRESS")
	setString(&c.Store.Backend, "DEPOSIT_STORE")
	setString(&c.Store.PostgresDSN, "POSTGRES_DSN")
	setString(&c.Store.RedisAddr, "REDIS_ADDR")
	setInt(&c.Store.RedisDB, "REDIS_DB")
	setInt(&c.RateLimit.RequestsPerSecond, "RATE_LIMIT_RPS")
	setInt(&c.RateLimit.Burst, "RATE_LIMIT_BURST")
	setBool(&c.Reconciler.Enabled, "RECONCILER_ENABLED")
	setDuration(&c.Reconciler.Interval, "RECONCILER_INTERVAL")
	setInt(&c.Reconciler.ScanLimit, "RECONCILER_SCAN_LIMIT")

	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		parts := strings.Split(v, ",")
		origins := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				origins = append(origins, p)
			}
		}
		c.AllowedOrigins = origins
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DepositAddress) == "" {
		return fmt.Errorf("deposit address is required (set DEPOSIT_ADDRESS)")
	}
	if strings.TrimSpace(c.RPCURL) == "" {
		return fmt.Errorf("rpc url is required")
	}

	switch c.Store.Backend {
	case StoreMemory:
	case StorePostgres:
		if strings.TrimSpace(c.Store.PostgresDSN) == "" {
			return fmt.Errorf("postgres backend requires a dsn (set POSTGRES_DSN)")
		}
	case StoreRedis:
		if strings.TrimSpace(c.Store.RedisAddr) == "" {
			return fmt.Errorf("redis backend requires an address (set REDIS_ADDR)")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate limit values must be positive")
	}
	if c.Reconciler.Enabled && c.Reconciler.Interval <= 0 {
		return fmt.Errorf("reconciler interval must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
