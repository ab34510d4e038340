package infra

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every runtime setting. Secrets may live in the file but are
// expected to arrive via environment variables (KNITE_*), which always win.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Trading struct {
		Mode string `yaml:"mode"` // "MOCK" or "LIVE"
	} `yaml:"trading"`

	Engine struct {
		TickIntervalMS     int  `yaml:"tick_interval_ms"`     // default 1
		DrainCap           int  `yaml:"drain_cap"`            // default 100
		RecoveryTimeoutSec int  `yaml:"recovery_timeout_sec"` // default 5
		BlockAllOrders     bool `yaml:"block_all_orders"`
	} `yaml:"engine"`

	Flattrade struct {
		BaseURL       string `yaml:"base_url"`
		WSURL         string `yaml:"ws_url"`
		UserID        string `yaml:"user_id"`
		APIKey        string `yaml:"api_key"`
		APISecret     string `yaml:"api_secret"`
		RateLimitMS   int    `yaml:"rate_limit_ms"` // min spacing between calls, default 100
		TokenFile     string `yaml:"token_file"`
		VerifyCached  bool   `yaml:"verify_cached"` // re-validate cached session token before trusting it
		ReconnectSec  int    `yaml:"reconnect_sec"` // push-stream reconnect delay, default 5
	} `yaml:"flattrade"`

	Admin struct {
		Listen string `yaml:"listen"`
	} `yaml:"admin"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the config file, applies environment overrides
// and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a config with every default applied and no file
// involved. Used when no config file exists and by tests.
func DefaultConfig() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Engine.TickIntervalMS <= 0 {
		c.Engine.TickIntervalMS = 1
	}
	if c.Engine.DrainCap <= 0 {
		c.Engine.DrainCap = 100
	}
	if c.Engine.RecoveryTimeoutSec <= 0 {
		c.Engine.RecoveryTimeoutSec = 5
	}
	if c.Flattrade.RateLimitMS <= 0 {
		c.Flattrade.RateLimitMS = 100
	}
	if c.Flattrade.ReconnectSec <= 0 {
		c.Flattrade.ReconnectSec = 5
	}
	if c.Flattrade.TokenFile == "" {
		c.Flattrade.TokenFile = "flattrade_token.json"
	}
	if c.Admin.Listen == "" {
		c.Admin.Listen = "localhost:8880"
	}
	if c.Trading.Mode == "" {
		c.Trading.Mode = "MOCK"
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	mode := strings.ToUpper(c.Trading.Mode)
	if mode != "MOCK" && mode != "LIVE" {
		return fmt.Errorf("unknown trading mode: %s", c.Trading.Mode)
	}

	if mode == "LIVE" {
		if c.Flattrade.BaseURL == "" || !strings.HasPrefix(c.Flattrade.BaseURL, "https://") {
			return fmt.Errorf("invalid Flattrade base URL: %s", c.Flattrade.BaseURL)
		}
		if c.Flattrade.WSURL == "" || !strings.HasPrefix(c.Flattrade.WSURL, "wss://") {
			return fmt.Errorf("invalid Flattrade WS URL: %s", c.Flattrade.WSURL)
		}
		if c.Flattrade.UserID == "" {
			return fmt.Errorf("flattrade user_id is required in LIVE mode")
		}
	}

	return nil
}

// TickInterval returns the loop cadence as a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Engine.TickIntervalMS) * time.Millisecond
}

// RecoveryTimeout returns the bounded recovery window.
func (c *Config) RecoveryTimeout() time.Duration {
	return time.Duration(c.Engine.RecoveryTimeoutSec) * time.Second
}

// ReconnectDelay returns the push-stream reconnect interval.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.Flattrade.ReconnectSec) * time.Second
}

// overrideWithEnv lets environment variables win over file values, so API
// secrets can stay out of the config file entirely.
func overrideWithEnv(cfg *Config) {
	if cfg.Flattrade.APISecret != "" {
		fmt.Println("SECURITY WARNING: API secret found in config file.")
		fmt.Println("  Recommendation: use KNITE_FLATTRADE_KEY / KNITE_FLATTRADE_SECRET instead.")
	}

	if v := os.Getenv("KNITE_FLATTRADE_USER"); v != "" {
		cfg.Flattrade.UserID = v
	}
	if v := os.Getenv("KNITE_FLATTRADE_KEY"); v != "" {
		cfg.Flattrade.APIKey = v
	}
	if v := os.Getenv("KNITE_FLATTRADE_SECRET"); v != "" {
		cfg.Flattrade.APISecret = v
	}
	if v := os.Getenv("KNITE_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
}
