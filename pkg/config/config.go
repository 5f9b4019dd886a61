package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is read from a YAML file under the user's home directory.
// All fields are optional; defaults are applied by the accessor methods.
//
// Example (~/.relaydeck/config.yaml):
//
// server:
//   host: 127.0.0.1
//   port: 8099
// database:
//   path: ~/.relaydeck/relaydeck.db
// backend:
//   base_url: http://127.0.0.1:11434
//   api_key: sk-...
//   model: default
// chat:
//   ephemeral: false
//   flush_chars: 64
//   flush_interval_ms: 300
//
// Notes:
// - If the config file does not exist, Load returns defaults without error.
// - If the config file exists but cannot be parsed, Load returns an error.
// - RELAYDECK_PORT overrides server.port when set.

type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Backend  BackendConfig  `yaml:"backend"`
	Chat     ChatConfig     `yaml:"chat"`
}

type ServerConfig struct {
	Host *string `yaml:"host"`
	Port *int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path *string `yaml:"path"`
}

type BackendConfig struct {
	BaseURL *string `yaml:"base_url"`
	APIKey  *string `yaml:"api_key"`
	Model   *string `yaml:"model"`
}

type ChatConfig struct {
	Ephemeral       *bool `yaml:"ephemeral"`
	FlushChars      *int  `yaml:"flush_chars"`
	FlushIntervalMS *int  `yaml:"flush_interval_ms"`
}

const (
	DefaultHost           = "127.0.0.1"
	DefaultPort           = 8099
	DefaultBackendBaseURL = "http://127.0.0.1:11434"
	DefaultFlushChars     = 64
	DefaultFlushInterval  = 300 * time.Millisecond
)

// DefaultPaths returns the config dir and config file path.
func DefaultPaths() (configDir string, configFile string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("get user home dir: %w", err)
	}
	configDir = filepath.Join(home, ".relaydeck")
	configFile = filepath.Join(configDir, "config.yaml")
	return configDir, configFile, nil
}

// Load reads ~/.relaydeck/config.yaml.
// If the file doesn't exist, it returns a default config and nil error.
func Load() (*AppConfig, string, error) {
	_, configFile, err := DefaultPaths()
	if err != nil {
		return nil, "", err
	}

	cfg := &AppConfig{}

	b, err := os.ReadFile(configFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, configFile, nil
		}
		return nil, "", fmt.Errorf("read config file %s: %w", configFile, err)
	}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, "", fmt.Errorf("parse yaml config %s: %w", configFile, err)
	}

	host := cfg.Host()
	if strings.TrimSpace(host) == "" {
		return nil, "", fmt.Errorf("invalid server.host (empty) in %s", configFile)
	}

	port := cfg.Port()
	if port < 1 || port > 65535 {
		return nil, "", fmt.Errorf("invalid server.port %d in %s", port, configFile)
	}

	if cfg.FlushChars() < 1 {
		return nil, "", fmt.Errorf("invalid chat.flush_chars %d in %s", cfg.FlushChars(), configFile)
	}
	if cfg.FlushInterval() <= 0 {
		return nil, "", fmt.Errorf("invalid chat.flush_interval_ms in %s", configFile)
	}

	return cfg, configFile, nil
}

func (c *AppConfig) Host() string {
	if c == nil || c.Server.Host == nil {
		return DefaultHost
	}
	v := strings.TrimSpace(*c.Server.Host)
	if v == "" {
		return DefaultHost
	}
	return v
}

// Port returns the configured listen port. RELAYDECK_PORT wins when valid.
func (c *AppConfig) Port() int {
	if v := strings.TrimSpace(os.Getenv("RELAYDECK_PORT")); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 && p <= 65535 {
			return p
		}
	}
	if c == nil || c.Server.Port == nil {
		return DefaultPort
	}
	return *c.Server.Port
}

// DatabasePath returns the sqlite file path, defaulting to
// ~/.relaydeck/relaydeck.db.
func (c *AppConfig) DatabasePath() (string, error) {
	if c != nil && c.Database.Path != nil && strings.TrimSpace(*c.Database.Path) != "" {
		return *c.Database.Path, nil
	}
	configDir, _, err := DefaultPaths()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "relaydeck.db"), nil
}

func (c *AppConfig) BackendBaseURL() string {
	if c == nil || c.Backend.BaseURL == nil {
		return DefaultBackendBaseURL
	}
	v := strings.TrimSpace(*c.Backend.BaseURL)
	if v == "" {
		return DefaultBackendBaseURL
	}
	return strings.TrimRight(v, "/")
}

func (c *AppConfig) BackendAPIKey() string {
	if c == nil || c.Backend.APIKey == nil {
		return ""
	}
	return strings.TrimSpace(*c.Backend.APIKey)
}

func (c *AppConfig) BackendModel() string {
	if c == nil || c.Backend.Model == nil {
		return ""
	}
	return strings.TrimSpace(*c.Backend.Model)
}

// Ephemeral reports whether persistence is disabled globally.
func (c *AppConfig) Ephemeral() bool {
	if c == nil || c.Chat.Ephemeral == nil {
		return false
	}
	return *c.Chat.Ephemeral
}

func (c *AppConfig) FlushChars() int {
	if c == nil || c.Chat.FlushChars == nil {
		return DefaultFlushChars
	}
	return *c.Chat.FlushChars
}

func (c *AppConfig) FlushInterval() time.Duration {
	if c == nil || c.Chat.FlushIntervalMS == nil {
		return DefaultFlushInterval
	}
	return time.Duration(*c.Chat.FlushIntervalMS) * time.Millisecond
}
