package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.inboxd/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`

	// Identity of the signed-in user and the marketplace API it talks to.
	UserID     string `toml:"user_id"`
	APIBaseURL string `toml:"api_base_url"`
	APIToken   string `toml:"api_token"`

	// Address the local HTTP API binds to.
	Listen string `toml:"listen"`

	// Refresh tuning. Interval is how often the periodic trigger fires;
	// cooldown is the minimum gap between backend syncs it is allowed to
	// cause. Manual refreshes ignore the cooldown.
	RefreshIntervalSeconds int `toml:"refresh_interval_seconds"`
	RefreshCooldownSeconds int `toml:"refresh_cooldown_seconds"`

	// Cap on concurrent preview fetches during one assembly.
	PreviewFanout int `toml:"preview_fanout"`
}

// Default returns the built-in configuration values.
func Default() Config {
	return Config{
		Listen:                 "127.0.0.1:7330",
		RefreshIntervalSeconds: 30,
		RefreshCooldownSeconds: 120,
		PreviewFanout:          20,
	}
}

// Load reads config from the given path, filling unset fields with defaults.
// Returns an error if the file is missing or malformed.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Listen == "" {
		cfg.Listen = Default().Listen
	}
	if cfg.RefreshIntervalSeconds <= 0 {
		cfg.RefreshIntervalSeconds = Default().RefreshIntervalSeconds
	}
	if cfg.RefreshCooldownSeconds <= 0 {
		cfg.RefreshCooldownSeconds = Default().RefreshCooldownSeconds
	}
	if cfg.PreviewFanout <= 0 {
		cfg.PreviewFanout = Default().PreviewFanout
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
