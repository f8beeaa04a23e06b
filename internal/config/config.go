// Package config loads and validates the daemon configuration file
// (.bpxd.toml). A missing file is not an error: every section has working
// defaults so `bpxd daemon` runs out of the box with the in-memory store.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root of the TOML configuration file.
type Config struct {
	API    APIConfig    `toml:"api"`
	GitHub GitHubConfig `toml:"github"`
	Sync   SyncConfig   `toml:"sync"`
	Limits LimitsConfig `toml:"limits"`
	Store  StoreConfig  `toml:"store"`
	Admin  AdminConfig  `toml:"admin"`
}

// APIConfig configures the HTTP listener.
type APIConfig struct {
	Addr        string   `toml:"addr"`
	CORSOrigins []string `toml:"cors_origins"`
}

// GitHubConfig configures the upstream release source. BaseURL is only needed
// for GitHub Enterprise; Token raises the unauthenticated rate limit.
type GitHubConfig struct {
	Token   string `toml:"token"`
	BaseURL string `toml:"base_url"`
}

// SyncConfig bounds the release pipeline: pagination, retries, the artifact
// size ceiling and the bulk run shape.
type SyncConfig struct {
	MaxPages         int      `toml:"max_pages"`
	MaxAttempts      int      `toml:"max_attempts"`
	BaseDelay        Duration `toml:"base_delay"`
	MaxDelay         Duration `toml:"max_delay"`
	MaxArtifactBytes int64    `toml:"max_artifact_bytes"`
	Workers          int      `toml:"workers"`
	BulkBudget       Duration `toml:"bulk_budget"`
	Interval         Duration `toml:"interval"`
}

// LimitsConfig configures the per-caller fixed-window quotas.
type LimitsConfig struct {
	SyncPerHour        int `toml:"sync_per_hour"`
	SubmissionsPerHour int `toml:"submissions_per_hour"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string `toml:"driver"` // "memory" or "postgres"
	DSN    string `toml:"dsn"`
}

// AdminConfig holds the bearer token protecting admin routes. An empty token
// disables admin routes entirely rather than leaving them open.
type AdminConfig struct {
	Token string `toml:"token"`
}

// Duration is a time.Duration that decodes from TOML strings like "30s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped standard library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		API: APIConfig{
			Addr:        "0.0.0.0:8090",
			CORSOrigins: []string{"*"},
		},
		Sync: SyncConfig{
			MaxPages:         3,
			MaxAttempts:      4,
			BaseDelay:        Duration(500 * time.Millisecond),
			MaxDelay:         Duration(30 * time.Second),
			MaxArtifactBytes: 64 << 20,
			Workers:          2,
			BulkBudget:       Duration(10 * time.Minute),
			Interval:         Duration(6 * time.Hour),
		},
		Limits: LimitsConfig{
			SyncPerHour:        30,
			SubmissionsPerHour: 5,
		},
		Store: StoreConfig{
			Driver: "memory",
		},
	}
}

// Load reads the config file at path, layered over defaults. When the file
// does not exist the defaults are returned as-is.
func Load(path string) (*Config, error) {
	cfg := Default()

	path = strings.TrimSpace(path)
	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to stat config file (%s): %w", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config from file (%s): %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config (%s): %w", path, err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.API.Addr) == "" {
		return fmt.Errorf("api.addr cannot be empty")
	}

	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Store.DSN) == "" {
			return fmt.Errorf("store.dsn is required when store.driver is 'postgres'")
		}
	default:
		return fmt.Errorf("store.driver must be 'memory' or 'postgres', got '%s'", c.Store.Driver)
	}

	if c.Sync.MaxPages < 1 {
		return fmt.Errorf("sync.max_pages must be at least 1, got %d", c.Sync.MaxPages)
	}
	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("sync.max_attempts must be at least 1, got %d", c.Sync.MaxAttempts)
	}
	if c.Sync.BaseDelay <= 0 || c.Sync.MaxDelay <= 0 {
		return fmt.Errorf("sync.base_delay and sync.max_delay must be positive")
	}
	if c.Sync.MaxArtifactBytes < 1 {
		return fmt.Errorf("sync.max_artifact_bytes must be at least 1, got %d", c.Sync.MaxArtifactBytes)
	}
	if c.Sync.Workers < 1 {
		return fmt.Errorf("sync.workers must be at least 1, got %d", c.Sync.Workers)
	}
	if c.Sync.BulkBudget <= 0 {
		return fmt.Errorf("sync.bulk_budget must be positive")
	}
	if c.Sync.Interval < 0 {
		return fmt.Errorf("sync.interval cannot be negative")
	}

	if c.Limits.SyncPerHour < 1 {
		return fmt.Errorf("limits.sync_per_hour must be at least 1, got %d", c.Limits.SyncPerHour)
	}
	if c.Limits.SubmissionsPerHour < 1 {
		return fmt.Errorf("limits.submissions_per_hour must be at least 1, got %d", c.Limits.SubmissionsPerHour)
	}

	return nil
}
