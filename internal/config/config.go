// ABOUTME: Configuration management for circle with YAML config loading.
// ABOUTME: Handles backend selection, feed tuning, session settings and ~ expansion.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend kinds.
const (
	BackendRemote   = "remote"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Feed defaults applied by WithDefaults.
const (
	DefaultPageSize   = 10
	DefaultMaxAgeDays = 30
	DefaultStaleAfter = 5 * time.Minute
	DefaultHungAfter  = 5 * time.Second
	DefaultViewerTTL  = 5 * time.Minute
)

// Config stores circle configuration loaded from ~/.config/circle/config.yaml.
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Feed    FeedConfig    `yaml:"feed"`
	Session SessionConfig `yaml:"session"`
}

// BackendConfig selects and configures the storage backend.
type BackendConfig struct {
	Kind        string `yaml:"kind,omitempty"`
	APIURL      string `yaml:"api_url,omitempty"`
	APIKey      string `yaml:"api_key,omitempty"`
	Email       string `yaml:"email,omitempty"`
	PostgresDSN string `yaml:"postgres_dsn,omitempty"`
	RedisAddr   string `yaml:"redis_addr,omitempty"`
	FixturePath string `yaml:"fixture_path,omitempty"`
}

// FeedConfig tunes fetching and refresh.
type FeedConfig struct {
	PageSize   int           `yaml:"page_size,omitempty"`
	MaxAgeDays int           `yaml:"max_age_days,omitempty"`
	StaleAfter time.Duration `yaml:"stale_after,omitempty"`
	HungAfter  time.Duration `yaml:"hung_after,omitempty"`
}

// SessionConfig holds token verification settings.
type SessionConfig struct {
	// JWTSecret verifies session tokens when set; otherwise tokens are only decoded.
	JWTSecret string        `yaml:"jwt_secret,omitempty"`
	ViewerTTL time.Duration `yaml:"viewer_ttl,omitempty"`
}

// HasRemote returns true if the remote API is configured.
func (c *Config) HasRemote() bool {
	return c.Backend.APIURL != "" && c.Backend.APIKey != ""
}

// BackendKind returns the configured backend, inferring it from the
// settings present when kind is not set explicitly.
func (c *Config) BackendKind() string {
	if c.Backend.Kind != "" {
		return c.Backend.Kind
	}
	switch {
	case c.HasRemote():
		return BackendRemote
	case c.Backend.PostgresDSN != "":
		return BackendPostgres
	default:
		return BackendMemory
	}
}

// Validate checks that the selected backend has what it needs.
func (c *Config) Validate() error {
	switch kind := c.BackendKind(); kind {
	case BackendRemote:
		if !c.HasRemote() {
			return fmt.Errorf("remote backend needs api_url and api_key")
		}
	case BackendPostgres:
		if c.Backend.PostgresDSN == "" {
			return fmt.Errorf("postgres backend needs postgres_dsn")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown backend kind %q", kind)
	}
	if c.Feed.PageSize < 0 {
		return fmt.Errorf("feed.page_size must not be negative")
	}
	return nil
}

// WithDefaults returns a copy with unset feed and session values filled in.
func (c Config) WithDefaults() Config {
	if c.Feed.PageSize == 0 {
		c.Feed.PageSize = DefaultPageSize
	}
	if c.Feed.MaxAgeDays == 0 {
		c.Feed.MaxAgeDays = DefaultMaxAgeDays
	}
	if c.Feed.StaleAfter == 0 {
		c.Feed.StaleAfter = DefaultStaleAfter
	}
	if c.Feed.HungAfter == 0 {
		c.Feed.HungAfter = DefaultHungAfter
	}
	if c.Session.ViewerTTL == 0 {
		c.Session.ViewerTTL = DefaultViewerTTL
	}
	return c
}

// GetFixturePath returns the expanded fixture path for the memory backend.
func (c *Config) GetFixturePath() (string, error) {
	return ExpandPath(c.Backend.FixturePath)
}

// DataDir returns the directory for session and other local state.
func DataDir() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "circle"), nil
}

// GetConfigPath returns the config file path.
func GetConfigPath() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "circle", "config.yaml"), nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return home, nil
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}

// Load reads config from disk. Returns default config if file doesn't exist.
func Load() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes config to disk.
func (c *Config) Save() error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
