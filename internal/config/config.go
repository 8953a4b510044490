// Package config defines the top-level configuration for the gas optimizer
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by GASPILOT_* environment variables.
type Config struct {
	Oracle     OracleConfig     `toml:"oracle"`
	Aggregator AggregatorConfig `toml:"aggregator"`
	Policy     PolicyConfig     `toml:"policy"`
	Server     ServerConfig     `toml:"server"`
	Redis      RedisConfig      `toml:"redis"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
	LogFormat  string           `toml:"log_format"`
}

// OracleConfig groups the upstream fee data sources. The gas station is the
// primary source; the scan oracle is the fallback; the RPC source is an
// optional last-resort fallback read straight from a Polygon node.
type OracleConfig struct {
	GasStation GasStationConfig `toml:"gasstation"`
	Scan       ScanConfig       `toml:"scan"`
	RPC        RPCConfig        `toml:"rpc"`
}

// GasStationConfig holds the tiered gas-station oracle endpoint parameters.
type GasStationConfig struct {
	BaseURL string   `toml:"base_url"`
	Timeout duration `toml:"timeout"`
}

// ScanConfig holds the block-explorer gas oracle endpoint parameters. The
// API key is optional for low request volumes.
type ScanConfig struct {
	BaseURL string   `toml:"base_url"`
	APIKey  string   `toml:"api_key"`
	Timeout duration `toml:"timeout"`
}

// RPCConfig holds the JSON-RPC fee source parameters. Disabled by default
// because it needs a node endpoint that allows eth_feeHistory.
type RPCConfig struct {
	Enabled       bool     `toml:"enabled"`
	URL           string   `toml:"url"`
	Timeout       duration `toml:"timeout"`
	HistoryBlocks int      `toml:"history_blocks"`
}

// AggregatorConfig controls snapshot caching and the retry/fallback chain.
type AggregatorConfig struct {
	// RefreshInterval is how long a cached snapshot stays fresh. Callers
	// inside the interval are served from cache without upstream I/O.
	RefreshInterval duration `toml:"refresh_interval"`
	// MaxRetries is how many times the primary source is retried after its
	// first failure before the aggregator moves to the fallback chain.
	MaxRetries int `toml:"max_retries"`
}

// PolicyConfig seeds the optimizer policy at boot. The policy is mutable at
// runtime through the API; this section only sets the starting values.
type PolicyConfig struct {
	Aggressiveness     string  `toml:"aggressiveness"`
	MaxWaitTimeSeconds float64 `toml:"max_wait_time_seconds"`
	MinSavingsPercent  float64 `toml:"min_savings_percent"`
	FeePercent         float64 `toml:"fee_percent"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
	// APIKey protects mutating endpoints when set. Read endpoints stay open.
	APIKey          string   `toml:"api_key"`
	CORSOrigins     []string `toml:"cors_origins"`
	RateLimitPerMin int      `toml:"rate_limit_per_min"`
}

// RedisConfig holds the optional fee-update bus parameters. When disabled,
// fee updates reach WebSocket clients in-process only.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// NotifyConfig holds notification channel credentials and alert tuning.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	// CongestionThreshold is the congestion score at or above which a
	// refresh counts toward a congestion alert.
	CongestionThreshold float64 `toml:"congestion_threshold"`
	// CongestionStreak is how many consecutive high-congestion refreshes
	// trigger an alert.
	CongestionStreak int      `toml:"congestion_streak"`
	Cooldown         duration `toml:"cooldown"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Oracle: OracleConfig{
			GasStation: GasStationConfig{
				BaseURL: "https://gasstation.polygon.technology",
				Timeout: duration{10 * time.Second},
			},
			Scan: ScanConfig{
				BaseURL: "https://api.polygonscan.com/api",
				Timeout: duration{10 * time.Second},
			},
			RPC: RPCConfig{
				Enabled:       false,
				URL:           "https://polygon-rpc.com",
				Timeout:       duration{10 * time.Second},
				HistoryBlocks: 5,
			},
		},
		Aggregator: AggregatorConfig{
			RefreshInterval: duration{30 * time.Second},
			MaxRetries:      3,
		},
		Policy: PolicyConfig{
			Aggressiveness:     "balanced",
			MaxWaitTimeSeconds: 30,
			MinSavingsPercent:  5,
			FeePercent:         10,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitPerMin: 120,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			TLSEnabled: false,
		},
		Notify: NotifyConfig{
			Events:              []string{"congestion_alert", "refresh_failure"},
			CongestionThreshold: 0.9,
			CongestionStreak:    3,
			Cooldown:            duration{10 * time.Minute},
		},
		Mode:      "serve",
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve": true,
	"watch": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validLogFormats enumerates the accepted values for Config.LogFormat.
var validLogFormats = map[string]bool{
	"json": true,
	"text": true,
}

// validAggressiveness enumerates the accepted policy aggressiveness levels.
var validAggressiveness = map[string]bool{
	"conservative": true,
	"balanced":     true,
	"aggressive":   true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, watch)", c.Mode))
	}

	// Logging
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if !validLogFormats[strings.ToLower(c.LogFormat)] {
		errs = append(errs, fmt.Sprintf("unknown log_format %q (valid: json, text)", c.LogFormat))
	}

	// Oracles
	if c.Oracle.GasStation.BaseURL == "" {
		errs = append(errs, "oracle.gasstation: base_url must not be empty")
	}
	if c.Oracle.GasStation.Timeout.Duration <= 0 {
		errs = append(errs, "oracle.gasstation: timeout must be positive")
	}
	if c.Oracle.Scan.BaseURL == "" {
		errs = append(errs, "oracle.scan: base_url must not be empty")
	}
	if c.Oracle.Scan.Timeout.Duration <= 0 {
		errs = append(errs, "oracle.scan: timeout must be positive")
	}
	if c.Oracle.RPC.Enabled {
		if c.Oracle.RPC.URL == "" {
			errs = append(errs, "oracle.rpc: url must not be empty when enabled")
		}
		if c.Oracle.RPC.HistoryBlocks < 1 {
			errs = append(errs, "oracle.rpc: history_blocks must be >= 1")
		}
	}

	// Aggregator
	if c.Aggregator.RefreshInterval.Duration <= 0 {
		errs = append(errs, "aggregator: refresh_interval must be positive")
	}
	if c.Aggregator.MaxRetries < 0 {
		errs = append(errs, "aggregator: max_retries must be >= 0")
	}

	// Policy
	if !validAggressiveness[strings.ToLower(c.Policy.Aggressiveness)] {
		errs = append(errs, fmt.Sprintf("policy: unknown aggressiveness %q (valid: conservative, balanced, aggressive)", c.Policy.Aggressiveness))
	}
	if c.Policy.MaxWaitTimeSeconds <= 0 {
		errs = append(errs, "policy: max_wait_time_seconds must be positive")
	}
	if c.Policy.MinSavingsPercent < 0 || c.Policy.MinSavingsPercent > 100 {
		errs = append(errs, "policy: min_savings_percent must be within [0,100]")
	}
	if c.Policy.FeePercent < 0 || c.Policy.FeePercent > 100 {
		errs = append(errs, "policy: fee_percent must be within [0,100]")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitPerMin < 0 {
			errs = append(errs, "server: rate_limit_per_min must be >= 0 (0 disables)")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Notify
	if c.Notify.CongestionThreshold < 0 || c.Notify.CongestionThreshold > 1 {
		errs = append(errs, "notify: congestion_threshold must be within [0,1]")
	}
	if c.Notify.CongestionStreak < 1 {
		errs = append(errs, "notify: congestion_streak must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
