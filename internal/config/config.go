// Package config loads and saves gasgauge settings from
// ~/.gasgauge/config.toml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// ErrNotFound indicates the config file does not exist.
var ErrNotFound = errors.New("config not found")

// ProviderConfig holds per-provider overrides. Zero values mean "use
// the provider's defaults".
type ProviderConfig struct {
	Disabled       bool   `toml:"disabled,omitempty"`
	Binary         string `toml:"binary,omitempty"`
	WorkDir        string `toml:"work_dir,omitempty"`
	TimeoutSec     int    `toml:"timeout_sec,omitempty"`
	IdleWindowMS   int    `toml:"idle_window_ms,omitempty"`
	SettleDelayMS  int    `toml:"settle_delay_ms,omitempty"`
	StartupTimeout int    `toml:"startup_timeout_sec,omitempty"`
}

// Config is the top-level settings file.
type Config struct {
	// RefreshIntervalSec is the continuous-monitoring poll interval.
	RefreshIntervalSec int `toml:"refresh_interval_sec"`

	// LedgerPath overrides the default usage history location.
	LedgerPath string `toml:"ledger_path,omitempty"`

	// ListenAddr is the address for gg serve.
	ListenAddr string `toml:"listen_addr,omitempty"`

	Providers map[string]ProviderConfig `toml:"providers"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		RefreshIntervalSec: 300,
		ListenAddr:         "localhost:7373",
		Providers:          make(map[string]ProviderConfig),
	}
}

// Path returns the config file location under the given home directory.
func Path(homeDir string) string {
	return filepath.Join(homeDir, ".gasgauge", "config.toml")
}

// DefaultPath returns the config path under the current user's home.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return Path(home)
}

// Load reads the config file at path. A missing file returns
// ErrNotFound so callers can fall back to Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	return cfg, nil
}

// LoadOrDefault reads the config file, substituting Default for a
// missing file. Other errors are still reported.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, ErrNotFound) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes the config file, creating its directory if needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	defer file.Close()

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}

// RefreshInterval returns the poll interval as a duration, clamped to
// a sane minimum.
func (c *Config) RefreshInterval() time.Duration {
	sec := c.RefreshIntervalSec
	if sec < 10 {
		sec = 10
	}
	return time.Duration(sec) * time.Second
}

// Provider returns the overrides for one provider, zero if unset.
func (c *Config) Provider(id string) ProviderConfig {
	if c.Providers == nil {
		return ProviderConfig{}
	}
	return c.Providers[id]
}

// Enabled reports whether a provider should be monitored.
func (c *Config) Enabled(id string) bool {
	return !c.Provider(id).Disabled
}
