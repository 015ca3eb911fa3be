// Package config loads and saves the sitebook configuration file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/theirongolddev/sitebook/internal/tui/theme"
)

// Environment overrides, applied after the config file.
const (
	EnvAPIURL       = "SITEBOOK_API_URL"
	EnvAMQPURL      = "SITEBOOK_AMQP_URL"
	EnvOTLPEndpoint = "SITEBOOK_OTLP_ENDPOINT"
	EnvDBPath       = "SITEBOOK_DB_PATH"
)

// Config holds all sitebook configuration.
type Config struct {
	API        APIConfig        `toml:"api"`
	Appearance AppearanceConfig `toml:"appearance"`
	TUI        TUIConfig        `toml:"tui"`
	Daemon     DaemonConfig     `toml:"daemon"`
	Events     EventsConfig     `toml:"events"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Storage    StorageConfig    `toml:"storage"`
}

// APIConfig holds backend connection settings.
type APIConfig struct {
	BaseURL     string `toml:"base_url"`
	TimeoutSec  int    `toml:"timeout_sec"`
	CacheTTLSec int    `toml:"cache_ttl_sec"`
}

// AppearanceConfig holds theme settings.
type AppearanceConfig struct {
	Theme string `toml:"theme"`
}

// TUIConfig holds dashboard refresh settings.
type TUIConfig struct {
	AutoRefresh        bool `toml:"auto_refresh"`
	RefreshIntervalSec int  `toml:"refresh_interval_sec"`
}

// DaemonConfig holds background poller settings.
type DaemonConfig struct {
	Addr         string `toml:"addr"`
	IntervalSec  int    `toml:"interval_sec"`
	EventsBuffer int    `toml:"events_buffer"`
}

// EventsConfig holds the AMQP publisher settings. Publishing is off when
// AMQPURL is empty.
type EventsConfig struct {
	AMQPURL    string `toml:"amqp_url,omitempty"`
	Exchange   string `toml:"exchange"`
	RoutingKey string `toml:"routing_key"`
}

// MetricsConfig holds the OTLP exporter settings. Export is off when
// OTLPEndpoint is empty.
type MetricsConfig struct {
	OTLPEndpoint string `toml:"otlp_endpoint,omitempty"`
	Insecure     bool   `toml:"insecure"`
}

// StorageConfig holds the local database location.
type StorageConfig struct {
	DBPath string `toml:"db_path,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL:     "http://localhost:8000/api/v1",
			TimeoutSec:  15,
			CacheTTLSec: 30,
		},
		Appearance: AppearanceConfig{
			Theme: "flexoki-dark",
		},
		TUI: TUIConfig{
			AutoRefresh:        true,
			RefreshIntervalSec: 60,
		},
		Daemon: DaemonConfig{
			Addr:         "127.0.0.1:8787",
			IntervalSec:  30,
			EventsBuffer: 200,
		},
		Events: EventsConfig{
			Exchange:   "sitebook",
			RoutingKey: "mutations",
		},
		Metrics: MetricsConfig{
			Insecure: true,
		},
	}
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "sitebook")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "sitebook")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// DataDir returns the XDG-compliant data directory.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "sitebook")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "sitebook")
}

// Load reads .env (if present), the config file and the environment
// overrides, returning defaults if the file doesn't exist.
func Load() (Config, error) {
	_ = godotenv.Load()
	return LoadFile(ConfigPath())
}

// LoadFile reads the config at path, then applies environment overrides.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config: %w", err)
		}
	case !os.IsNotExist(err):
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvAPIURL); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv(EnvAMQPURL); v != "" {
		cfg.Events.AMQPURL = v
	}
	if v := os.Getenv(EnvOTLPEndpoint); v != "" {
		cfg.Metrics.OTLPEndpoint = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.Storage.DBPath = v
	}
}

// Save writes the config to disk.
func Save(cfg Config) error {
	return SaveFile(ConfigPath(), cfg)
}

// SaveFile writes the config to path.
func SaveFile(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}

// DBPath returns the configured database path or the default under DataDir.
func (c Config) DBPath() string {
	if c.Storage.DBPath != "" {
		return c.Storage.DBPath
	}
	return filepath.Join(DataDir(), "sitebook.db")
}

// APITimeout returns the per-request timeout.
func (c Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSec) * time.Second
}

// CacheTTL returns how long GET responses are cached. Zero disables caching.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.API.CacheTTLSec) * time.Second
}

// RefreshInterval returns the TUI auto-refresh interval.
func (c Config) RefreshInterval() time.Duration {
	return time.Duration(c.TUI.RefreshIntervalSec) * time.Second
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var problems []string

	if err := checkURL(c.API.BaseURL, "http", "https"); err != nil {
		problems = append(problems, fmt.Sprintf("api.base_url: %v", err))
	}
	if c.API.TimeoutSec <= 0 {
		problems = append(problems, fmt.Sprintf("api.timeout_sec must be positive, got %d", c.API.TimeoutSec))
	}
	if c.API.CacheTTLSec < 0 {
		problems = append(problems, fmt.Sprintf("api.cache_ttl_sec must not be negative, got %d", c.API.CacheTTLSec))
	}
	if !theme.Exists(c.Appearance.Theme) {
		problems = append(problems, fmt.Sprintf("appearance.theme %q is not one of %s",
			c.Appearance.Theme, strings.Join(theme.Names(), ", ")))
	}
	if c.TUI.RefreshIntervalSec <= 0 {
		problems = append(problems, fmt.Sprintf("tui.refresh_interval_sec must be positive, got %d", c.TUI.RefreshIntervalSec))
	}
	if c.Daemon.IntervalSec <= 0 {
		problems = append(problems, fmt.Sprintf("daemon.interval_sec must be positive, got %d", c.Daemon.IntervalSec))
	}
	if c.Daemon.EventsBuffer <= 0 {
		problems = append(problems, fmt.Sprintf("daemon.events_buffer must be positive, got %d", c.Daemon.EventsBuffer))
	}
	if c.Events.AMQPURL != "" {
		if err := checkURL(c.Events.AMQPURL, "amqp", "amqps"); err != nil {
			problems = append(problems, fmt.Sprintf("events.amqp_url: %v", err))
		}
		if c.Events.Exchange == "" {
			problems = append(problems, "events.exchange cannot be empty when events.amqp_url is set")
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New("invalid configuration:\n- " + strings.Join(problems, "\n- "))
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return fmt.Errorf("%q has no host", raw)
			}
			return nil
		}
	}
	return fmt.Errorf("scheme of %q must be one of %s", raw, strings.Join(schemes, ", "))
}
