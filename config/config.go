package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables holding exchange credentials.
const (
	EnvAPIKey    = "BINANCE_API_KEY"
	EnvAPISecret = "BINANCE_API_SECRET"
)

// Config represents the complete journal configuration
type Config struct {
	Exchange ExchangeConfig `json:"exchange" yaml:"exchange"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
	Sync     SyncConfig     `json:"sync" yaml:"sync"`
	Feed     FeedConfig     `json:"feed" yaml:"feed"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

// ExchangeConfig contains Binance REST parameters. Credentials are never
// written to disk; they come from the environment.
type ExchangeConfig struct {
	BaseURL      string `json:"base_url" yaml:"base_url"`
	HTTPTimeout  string `json:"http_timeout" yaml:"http_timeout"`   // e.g. "15s"
	RequestDelay string `json:"request_delay" yaml:"request_delay"` // pause between paged requests, >= 200ms
	PageLimit    int    `json:"page_limit" yaml:"page_limit"`

	APIKey    string `json:"-" yaml:"-"`
	APISecret string `json:"-" yaml:"-"`
}

// JournalConfig contains storage parameters
type JournalConfig struct {
	DBPath string `json:"db_path" yaml:"db_path"`
}

// SyncConfig controls incremental imports
type SyncConfig struct {
	Lookback    string `json:"lookback" yaml:"lookback"` // first sync window, e.g. "720h"
	MaxAttempts int    `json:"max_attempts" yaml:"max_attempts"`
	Symbol      string `json:"symbol,omitempty" yaml:"symbol,omitempty"`
}

// FeedConfig contains live price stream parameters
type FeedConfig struct {
	URL string `json:"url" yaml:"url"`
}

// LogConfig selects the zap encoder and level
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug|info|warn|error
	Format string `json:"format" yaml:"format"` // json|console
}

// LoadFromFile loads configuration from a file (YAML, falling back to JSON)
// and applies environment overrides.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Load reads path when it is set, otherwise starts from Default. Env
// overrides apply either way.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) != "" {
		return LoadFromFile(path)
	}
	cfg := Default()
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none)
// into the process environment. Existing variables win. Missing files are
// not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	present := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// ApplyEnv copies credentials from the environment.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvAPIKey)); v != "" {
		c.Exchange.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAPISecret)); v != "" {
		c.Exchange.APISecret = v
	}
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	// Determine format by extension
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Journal.DBPath == "" {
		return fmt.Errorf("journal.db_path is required")
	}
	if _, err := c.HTTPTimeout(); err != nil {
		return fmt.Errorf("exchange.http_timeout: %w", err)
	}
	delay, err := c.RequestDelay()
	if err != nil {
		return fmt.Errorf("exchange.request_delay: %w", err)
	}
	if delay < 200*time.Millisecond {
		return fmt.Errorf("exchange.request_delay must be at least 200ms")
	}
	if c.Exchange.PageLimit < 0 || c.Exchange.PageLimit > 1000 {
		return fmt.Errorf("exchange.page_limit must be between 1 and 1000")
	}
	lookback, err := c.Lookback()
	if err != nil {
		return fmt.Errorf("sync.lookback: %w", err)
	}
	if lookback <= 0 {
		return fmt.Errorf("sync.lookback must be positive")
	}
	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("sync.max_attempts must be at least 1")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be 'json' or 'console'")
	}
	return nil
}

// HasCredentials reports whether both API key and secret are set.
func (c *Config) HasCredentials() bool {
	return c.Exchange.APIKey != "" && c.Exchange.APISecret != ""
}

// HTTPTimeout parses exchange.http_timeout.
func (c *Config) HTTPTimeout() (time.Duration, error) {
	return parseDuration(c.Exchange.HTTPTimeout)
}

// RequestDelay parses exchange.request_delay.
func (c *Config) RequestDelay() (time.Duration, error) {
	return parseDuration(c.Exchange.RequestDelay)
}

// Lookback parses sync.lookback.
func (c *Config) Lookback() (time.Duration, error) {
	return parseDuration(c.Sync.Lookback)
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Exchange: ExchangeConfig{
			BaseURL:      "https://fapi.binance.com",
			HTTPTimeout:  "15s",
			RequestDelay: "250ms",
			PageLimit:    1000,
		},
		Journal: JournalConfig{
			DBPath: "./journal.sqlite",
		},
		Sync: SyncConfig{
			Lookback:    "720h",
			MaxAttempts: 3,
		},
		Feed: FeedConfig{
			URL: "wss://fstream.binance.com/stream",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
