package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lazywh/lazywh/internal/logger"
	"github.com/lazywh/lazywh/internal/models"
)

// TokenEnv is read when server.token is empty
const TokenEnv = "LAZYWH_TOKEN"

// Config represents the application configuration
type Config struct {
	Server     ServerConfig       `yaml:"server"`
	Realtime   RealtimeConfig     `yaml:"realtime"`
	UI         UIConfig           `yaml:"ui"`
	Log        logger.Config      `yaml:"log"`
	Metrics    MetricsConfig      `yaml:"metrics"`
	Warehouses []models.Warehouse `yaml:"warehouses,omitempty"` // Used when server.api_base is empty
}

// ServerConfig locates the warehouse backend
type ServerConfig struct {
	APIBase string `yaml:"api_base"`
	WSBase  string `yaml:"ws_base"`
	Token   string `yaml:"token,omitempty"`
}

// RealtimeConfig tunes the realtime channel and the telemetry store
type RealtimeConfig struct {
	ReconnectMs        int `yaml:"reconnect_ms"`
	MaxAttempts        int `yaml:"max_attempts"` // 0 = retry forever
	SeriesBound        int `yaml:"series_bound"`
	ScanHistory        int `yaml:"scan_history"`
	HandshakeTimeoutMs int `yaml:"handshake_timeout_ms"`
}

// UIConfig holds UI-related settings
type UIConfig struct {
	Theme     string `yaml:"theme"`
	RefreshMs int    `yaml:"refresh_ms"` // Warehouse list refresh
}

// MetricsConfig holds the optional metrics endpoint
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"` // Empty = disabled
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			APIBase: "https://dev.rtk-smart-warehouse.ru/api",
			WSBase:  "wss://dev.rtk-smart-warehouse.ru/api/ws/warehouses",
		},
		Realtime: RealtimeConfig{
			ReconnectMs:        3000,
			MaxAttempts:        0,
			SeriesBound:        60,
			ScanHistory:        20,
			HandshakeTimeoutMs: 10000,
		},
		UI: UIConfig{
			Theme:     "auto",
			RefreshMs: 30000,
		},
		Log: logger.DefaultConfig(),
	}
}

// ReconnectInterval returns realtime.reconnect_ms as a duration
func (c *Config) ReconnectInterval() time.Duration {
	return time.Duration(c.Realtime.ReconnectMs) * time.Millisecond
}

// HandshakeTimeout returns realtime.handshake_timeout_ms as a duration
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Realtime.HandshakeTimeoutMs) * time.Millisecond
}

// RefreshInterval returns ui.refresh_ms as a duration
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.UI.RefreshMs) * time.Millisecond
}

// Token returns the configured bearer token, falling back to LAZYWH_TOKEN
func (c *Config) Token() string {
	if c.Server.Token != "" {
		return c.Server.Token
	}
	return os.Getenv(TokenEnv)
}

// Validate rejects settings the realtime core cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Realtime.ReconnectMs <= 0 {
		errs = append(errs, fmt.Errorf("realtime.reconnect_ms must be positive, got %d", c.Realtime.ReconnectMs))
	}
	if c.Realtime.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("realtime.max_attempts must not be negative, got %d", c.Realtime.MaxAttempts))
	}
	if c.Realtime.SeriesBound <= 0 {
		errs = append(errs, fmt.Errorf("realtime.series_bound must be positive, got %d", c.Realtime.SeriesBound))
	}
	if c.Realtime.ScanHistory <= 0 {
		errs = append(errs, fmt.Errorf("realtime.scan_history must be positive, got %d", c.Realtime.ScanHistory))
	}
	if c.Realtime.HandshakeTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("realtime.handshake_timeout_ms must be positive, got %d", c.Realtime.HandshakeTimeoutMs))
	}
	if c.UI.RefreshMs <= 0 {
		errs = append(errs, fmt.Errorf("ui.refresh_ms must be positive, got %d", c.UI.RefreshMs))
	}
	for i, w := range c.Warehouses {
		if w.ID == "" {
			errs = append(errs, fmt.Errorf("warehouses[%d]: id is required", i))
		}
	}
	return errors.Join(errs...)
}

// ConfigDir returns the configuration directory path
func ConfigDir() (string, error) {
	// Check XDG_CONFIG_HOME first
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "lazywh"), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yml"), nil
}

// Load loads the configuration from the default path.
// Returns the config, whether this is a first run (no config exists), and any error
func Load() (*Config, bool, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, false, err
	}
	return LoadFrom(path)
}

// LoadFrom loads the configuration from path
func LoadFrom(path string) (*Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// First run - return default config
			return DefaultConfig(), true, nil
		}
		return nil, false, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, false, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, false, nil
}

// Save writes the configuration to the default path
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(path, cfg)
}

// SaveTo writes the configuration to path atomically
func SaveTo(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Write atomically: write to temp file, then rename
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}

	return os.Rename(tmpPath, path)
}

// GetWarehouse returns a statically configured warehouse by id
func (c *Config) GetWarehouse(id string) *models.Warehouse {
	for i := range c.Warehouses {
		if c.Warehouses[i].ID == id {
			return &c.Warehouses[i]
		}
	}
	return nil
}
