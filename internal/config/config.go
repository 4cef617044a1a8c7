// Package config loads, validates, saves and watches the datachat YAML
// configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport names accepted in server.transport.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

const (
	defaultServerURL      = "http://localhost:8000"
	defaultRequestTimeout = 30 * time.Second
	defaultCancelTimeout  = 5 * time.Second
	defaultCacheSize      = 32
	defaultLogLevel       = "info"
	defaultTheme          = "default"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	History  HistoryConfig  `yaml:"history"`
	UI       UIConfig       `yaml:"ui"`
	Keymap   KeymapConfig   `yaml:"keymap"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Features FeaturesConfig `yaml:"features"`
}

// ServerConfig points the client at the analytics service.
type ServerConfig struct {
	URL            string        `yaml:"url"`
	Transport      string        `yaml:"transport"`
	Workspace      string        `yaml:"workspace,omitempty"`
	Token          string        `yaml:"token,omitempty"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	CancelTimeout  time.Duration `yaml:"cancel_timeout"`
}

// HistoryConfig configures the local SQLite mirror.
type HistoryConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path,omitempty"`
	CacheSize int    `yaml:"cache_size"`
}

// UIConfig configures UI behavior.
type UIConfig struct {
	ShowClock bool        `yaml:"show_clock"`
	Theme     ThemeConfig `yaml:"theme"`
}

// ThemeConfig configures the color theme.
type ThemeConfig struct {
	Name      string            `yaml:"name"`
	Overrides map[string]string `yaml:"overrides,omitempty"`
}

// KeymapConfig holds key binding overrides, key -> command id.
type KeymapConfig struct {
	Overrides map[string]string `yaml:"overrides,omitempty"`
}

// LogConfig configures the slog logger.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

// MetricsConfig configures the optional Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// FeaturesConfig holds feature flag overrides.
type FeaturesConfig struct {
	Flags map[string]bool `yaml:"flags,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:            defaultServerURL,
			Transport:      TransportSSE,
			RequestTimeout: defaultRequestTimeout,
			CancelTimeout:  defaultCancelTimeout,
		},
		History: HistoryConfig{
			Enabled:   true,
			CacheSize: defaultCacheSize,
		},
		UI: UIConfig{
			ShowClock: true,
			Theme: ThemeConfig{
				Name:      defaultTheme,
				Overrides: make(map[string]string),
			},
		},
		Keymap: KeymapConfig{
			Overrides: make(map[string]string),
		},
		Log: LogConfig{
			Level: defaultLogLevel,
		},
		Features: FeaturesConfig{
			Flags: make(map[string]bool),
		},
	}
}

// ConfigDir returns ~/.config/datachat.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "datachat")
	}
	return filepath.Join(home, ".config", "datachat")
}

var pathOverride string

// SetPath makes ConfigPath return path, e.g. for --config. Runtime saves
// then go to the same file that was loaded.
func SetPath(path string) { pathOverride = path }

// SetTestConfigPath redirects ConfigPath in tests.
func SetTestConfigPath(path string) { pathOverride = path }

// ResetTestConfigPath undoes SetTestConfigPath.
func ResetTestConfigPath() { pathOverride = "" }

// ConfigPath returns the default config file path.
func ConfigPath() string {
	if pathOverride != "" {
		return pathOverride
	}
	return filepath.Join(ConfigDir(), "config.yaml")
}

// Load reads the config at ConfigPath.
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads the config at path. A missing file yields the defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(ExpandPath(path))
	if errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		applyDefaults(cfg)
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.URL == "" {
		cfg.Server.URL = defaultServerURL
	}
	cfg.Server.URL = strings.TrimRight(cfg.Server.URL, "/")
	cfg.Server.Transport = strings.ToLower(strings.TrimSpace(cfg.Server.Transport))
	if cfg.Server.Transport == "" {
		cfg.Server.Transport = TransportSSE
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = defaultRequestTimeout
	}
	if cfg.Server.CancelTimeout <= 0 {
		cfg.Server.CancelTimeout = defaultCancelTimeout
	}
	if cfg.History.CacheSize <= 0 {
		cfg.History.CacheSize = defaultCacheSize
	}
	if cfg.History.Path == "" {
		cfg.History.Path = filepath.Join(ConfigDir(), "history.db")
	}
	cfg.History.Path = ExpandPath(cfg.History.Path)
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaultLogLevel
	}
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(ConfigDir(), "datachat.log")
	}
	cfg.Log.File = ExpandPath(cfg.Log.File)
	if cfg.UI.Theme.Name == "" {
		cfg.UI.Theme.Name = defaultTheme
	}
	if cfg.UI.Theme.Overrides == nil {
		cfg.UI.Theme.Overrides = make(map[string]string)
	}
	if cfg.Keymap.Overrides == nil {
		cfg.Keymap.Overrides = make(map[string]string)
	}
	if cfg.Features.Flags == nil {
		cfg.Features.Flags = make(map[string]bool)
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	u, err := url.Parse(c.Server.URL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Sprintf("server.url: %v", err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Sprintf("server.url: unsupported scheme %q", u.Scheme))
	case u.Host == "":
		errs = append(errs, "server.url: missing host")
	}

	switch c.Server.Transport {
	case TransportSSE, TransportWebSocket:
	default:
		errs = append(errs, fmt.Sprintf("server.transport: must be %q or %q, got %q", TransportSSE, TransportWebSocket, c.Server.Transport))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level: unknown level %q", c.Log.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath expands a leading ~ to the home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
