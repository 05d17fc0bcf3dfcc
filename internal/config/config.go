package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultUserAgent is the desktop Chrome user agent presented to target sites.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config holds all application configuration.
type Config struct {
	LogLevel   string           `yaml:"log_level" envconfig:"LOG_LEVEL"`
	Server     ServerConfig     `yaml:"server"`
	Browser    BrowserConfig    `yaml:"browser"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Probe      ProbeConfig      `yaml:"probe"`
	Download   DownloadConfig   `yaml:"download"`
	Store      StoreConfig      `yaml:"store"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host           string        `yaml:"host" envconfig:"SERVER_HOST"`
	Port           int           `yaml:"port" envconfig:"PORT"`
	APIKey         string        `yaml:"api_key" envconfig:"API_KEY"`
	ReadTimeout    time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT"`
	WriteTimeout   time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT"`
	ExtractTimeout time.Duration `yaml:"extract_timeout" envconfig:"SERVER_EXTRACT_TIMEOUT"`
}

// BrowserConfig controls the headless browser used to render pages.
type BrowserConfig struct {
	ExecPath          string        `yaml:"exec_path" envconfig:"BROWSER_EXEC_PATH"`
	Headless          bool          `yaml:"headless" envconfig:"BROWSER_HEADLESS"`
	UserAgent         string        `yaml:"user_agent" envconfig:"BROWSER_USER_AGENT"`
	ViewportWidth     int           `yaml:"viewport_width" envconfig:"BROWSER_VIEWPORT_WIDTH"`
	ViewportHeight    int           `yaml:"viewport_height" envconfig:"BROWSER_VIEWPORT_HEIGHT"`
	Locale            string        `yaml:"locale" envconfig:"BROWSER_LOCALE"`
	ResolveTimeout    time.Duration `yaml:"resolve_timeout" envconfig:"BROWSER_RESOLVE_TIMEOUT"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" envconfig:"BROWSER_NAVIGATION_TIMEOUT"`
	PlayerWait        time.Duration `yaml:"player_wait" envconfig:"BROWSER_PLAYER_WAIT"`
	ClickTimeout      time.Duration `yaml:"click_timeout" envconfig:"BROWSER_CLICK_TIMEOUT"`
	// SettleDuration is the fixed dwell after interaction that lets lazily
	// loaded player traffic appear before scripts are harvested.
	SettleDuration  time.Duration `yaml:"settle_duration" envconfig:"BROWSER_SETTLE_DURATION"`
	EvaluateTimeout time.Duration `yaml:"evaluate_timeout" envconfig:"BROWSER_EVALUATE_TIMEOUT"`
}

// ClassifierConfig overrides the built-in domain marker lists.
// Empty lists fall back to the defaults in package classify.
type ClassifierConfig struct {
	NoiseDomains []string `yaml:"noise_domains" envconfig:"CLASSIFIER_NOISE_DOMAINS"`
	MediaDomains []string `yaml:"media_domains" envconfig:"CLASSIFIER_MEDIA_DOMAINS"`
}

// ProbeConfig holds candidate validation configuration.
type ProbeConfig struct {
	Timeout   time.Duration `yaml:"timeout" envconfig:"PROBE_TIMEOUT"`
	MinSize   int64         `yaml:"min_size" envconfig:"PROBE_MIN_SIZE"` // 1 MiB
	UserAgent string        `yaml:"user_agent" envconfig:"PROBE_USER_AGENT"`
	Referer   string        `yaml:"referer" envconfig:"PROBE_REFERER"`
}

// DownloadConfig holds media download configuration.
type DownloadConfig struct {
	Timeout       time.Duration `yaml:"timeout" envconfig:"DOWNLOAD_TIMEOUT"`
	RetryDelay    time.Duration `yaml:"retry_delay" envconfig:"DOWNLOAD_RETRY_DELAY"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" envconfig:"DOWNLOAD_MAX_RETRY_DELAY"`
	ReadTimeout   time.Duration `yaml:"read_timeout" envconfig:"DOWNLOAD_READ_TIMEOUT"`
	UserAgent     string        `yaml:"user_agent" envconfig:"DOWNLOAD_USER_AGENT"`
}

// StoreConfig selects and tunes the extraction result store.
type StoreConfig struct {
	Driver        string        `yaml:"driver" envconfig:"STORE_DRIVER"`
	SQLitePath    string        `yaml:"sqlite_path" envconfig:"STORE_SQLITE_PATH"`
	TTL           time.Duration `yaml:"ttl" envconfig:"STORE_TTL"`
	MaxEntries    int           `yaml:"max_entries" envconfig:"STORE_MAX_ENTRIES"`
	SweepInterval time.Duration `yaml:"sweep_interval" envconfig:"STORE_SWEEP_INTERVAL"`
}

// Store drivers.
const (
	StoreDriverMemory = "memory"
	StoreDriverSQLite = "sqlite"
)

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           5000,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Minute,
			ExtractTimeout: 5 * time.Minute,
		},
		Browser: BrowserConfig{
			Headless:          true,
			ViewportWidth:     1920,
			ViewportHeight:    1080,
			Locale:            "en-US",
			ResolveTimeout:    10 * time.Second,
			NavigationTimeout: 60 * time.Second,
			PlayerWait:        5 * time.Second,
			ClickTimeout:      2 * time.Second,
			SettleDuration:    10 * time.Second,
			EvaluateTimeout:   10 * time.Second,
		},
		Probe: ProbeConfig{
			Timeout: 10 * time.Second,
			MinSize: 1 << 20,
		},
		Download: DownloadConfig{
			Timeout:       30 * time.Second,
			RetryDelay:    2 * time.Second,
			MaxRetryDelay: 30 * time.Second,
			ReadTimeout:   2 * time.Minute,
		},
		Store: StoreConfig{
			Driver:        StoreDriverMemory,
			SQLitePath:    "mediagrab.db",
			SweepInterval: 5 * time.Minute,
		},
	}
}

// Load reads configuration from file and environment variables.
// Environment variables override file values, which override Defaults.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables. Fields carry no default tags, so
	// unset variables leave file values alone.
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// RenderBudget is the longest a page render can take before any candidate
// is probed: resolve, navigation, player wait and click, settle, and the
// harvest and metadata evaluations.
func (b BrowserConfig) RenderBudget() time.Duration {
	return b.ResolveTimeout + b.NavigationTimeout + b.PlayerWait + b.ClickTimeout +
		b.SettleDuration + 2*b.EvaluateTimeout
}

// applyDefaults fills values that are shared between sections.
func (c *Config) applyDefaults() {
	if c.Browser.UserAgent == "" {
		c.Browser.UserAgent = DefaultUserAgent
	}
	if c.Probe.UserAgent == "" {
		c.Probe.UserAgent = c.Browser.UserAgent
	}
	if c.Download.UserAgent == "" {
		c.Download.UserAgent = c.Browser.UserAgent
	}
}

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("BROWSER_NAVIGATION_TIMEOUT must be positive")
	}
	if c.Browser.SettleDuration < 0 {
		return fmt.Errorf("BROWSER_SETTLE_DURATION cannot be negative")
	}
	// A positive extract timeout bounds the whole request, so it must leave
	// room for probing after the worst-case render.
	if c.Server.ExtractTimeout < 0 {
		return fmt.Errorf("SERVER_EXTRACT_TIMEOUT cannot be negative")
	}
	if budget := c.Browser.RenderBudget(); c.Server.ExtractTimeout > 0 && c.Server.ExtractTimeout <= budget {
		return fmt.Errorf("SERVER_EXTRACT_TIMEOUT (%s) must exceed the browser render budget (%s)",
			c.Server.ExtractTimeout, budget)
	}
	if c.Probe.Timeout <= 0 {
		return fmt.Errorf("PROBE_TIMEOUT must be positive")
	}
	if c.Probe.MinSize < 0 {
		return fmt.Errorf("PROBE_MIN_SIZE cannot be negative")
	}
	switch c.Store.Driver {
	case StoreDriverMemory:
	case StoreDriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("STORE_SQLITE_PATH is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Store.MaxEntries < 0 {
		return fmt.Errorf("STORE_MAX_ENTRIES cannot be negative")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ParseLogLevel maps a LOG_LEVEL value onto a slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown LOG_LEVEL %q", s)
}
