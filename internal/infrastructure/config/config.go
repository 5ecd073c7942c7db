package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all host configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Host      HostConfig      `yaml:"host" toml:"host"`
	Engine    EngineConfig    `yaml:"engine" toml:"engine"`
	Logging   LogConfig       `yaml:"logging" toml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
	Loader    LoaderConfig    `yaml:"loader" toml:"loader"`
}

// ServerConfig holds introspection API settings.
type ServerConfig struct {
	Port    string `envconfig:"MOON_PORT" default:"8080" yaml:"port" toml:"port"`
	Host    string `envconfig:"MOON_HOST" default:"127.0.0.1" yaml:"host" toml:"host"`
	Enabled bool   `envconfig:"MOON_API_ENABLED" default:"true" yaml:"enabled" toml:"enabled"`
}

// HostConfig holds the plugin instance settings a page would pass as
// <object> parameters.
type HostConfig struct {
	PageSource           string      `envconfig:"MOON_PAGE" yaml:"page" toml:"page"`
	EnableHTMLAccess     bool        `envconfig:"MOON_ENABLE_HTML_ACCESS" default:"true" yaml:"enable_html_access" toml:"enable_html_access"`
	RunningOutOfBrowser  bool        `envconfig:"MOON_OUT_OF_BROWSER" default:"false" yaml:"out_of_browser" toml:"out_of_browser"`
	AllowHTMLPopupWindow bool        `envconfig:"MOON_ALLOW_POPUPS" default:"true" yaml:"allow_popups" toml:"allow_popups"`
	UserAgent            string      `envconfig:"MOON_USER_AGENT" default:"Mozilla/5.0 (X11; Linux x86_64) moonbridge" yaml:"user_agent" toml:"user_agent"`
	Classes              []ClassSpec `ignored:"true" yaml:"classes" toml:"classes"`
}

// ClassSpec declares a class the host may resolve by name.
type ClassSpec struct {
	Name string `yaml:"name" toml:"name"`
	Base string `yaml:"base,omitempty" toml:"base,omitempty"`
}

// EngineConfig holds in-process engine settings.
type EngineConfig struct {
	MaxTypes int `envconfig:"MOON_MAX_TYPES" default:"0" yaml:"max_types" toml:"max_types"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"development" toml:"development"`
	// Output is a zap sink: stdout, stderr or a file path.
	Output string `envconfig:"LOG_OUTPUT" default:"stdout" yaml:"output" toml:"output"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100" yaml:"rps" toml:"rps"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200" yaml:"burst" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" yaml:"enabled" toml:"enabled"`
}

// LoaderConfig holds page loader settings.
type LoaderConfig struct {
	Timeout         Duration `envconfig:"MOON_LOADER_TIMEOUT" default:"10s" yaml:"timeout" toml:"timeout"`
	RetryMax        int      `envconfig:"MOON_LOADER_RETRIES" default:"3" yaml:"retries" toml:"retries"`
	MaxBytes        int64    `envconfig:"MOON_LOADER_MAX_BYTES" default:"4194304" yaml:"max_bytes" toml:"max_bytes"`
	BreakerFailures uint32   `envconfig:"MOON_LOADER_BREAKER_FAILURES" default:"5" yaml:"breaker_failures" toml:"breaker_failures"`
	BreakerTimeout  Duration `envconfig:"MOON_LOADER_BREAKER_TIMEOUT" default:"30s" yaml:"breaker_timeout" toml:"breaker_timeout"`
}

// Duration is a time.Duration written as "10s" in env vars and files.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadFile loads the environment and then overlays a YAML (.yaml, .yml) or
// TOML (.toml) file. Values present in the file win.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Server.Enabled && c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit rps and burst must be positive")
	}
	if c.Engine.MaxTypes < 0 {
		return fmt.Errorf("engine max types must not be negative")
	}
	seen := make(map[string]bool, len(c.Host.Classes))
	for _, cls := range c.Host.Classes {
		if cls.Name == "" {
			return fmt.Errorf("class with empty name")
		}
		if seen[cls.Name] {
			return fmt.Errorf("class %s declared twice", cls.Name)
		}
		seen[cls.Name] = true
	}
	for _, cls := range c.Host.Classes {
		if cls.Base != "" && !seen[cls.Base] {
			return fmt.Errorf("class %s: unknown base %s", cls.Name, cls.Base)
		}
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:    "8080",
			Host:    "127.0.0.1",
			Enabled: true,
		},
		Host: HostConfig{
			EnableHTMLAccess:     true,
			AllowHTMLPopupWindow: true,
			UserAgent:            "Mozilla/5.0 (X11; Linux x86_64) moonbridge",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
			Output:      "stdout",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Loader: LoaderConfig{
			Timeout:         Duration{10 * time.Second},
			RetryMax:        3,
			MaxBytes:        4 << 20,
			BreakerFailures: 5,
			BreakerTimeout:  Duration{30 * time.Second},
		},
	}
}
