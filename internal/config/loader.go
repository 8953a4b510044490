package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies GASPILOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load. An empty path skips the
// file and configures from defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known GASPILOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Oracles ──
	setStr(&cfg.Oracle.GasStation.BaseURL, "GASPILOT_ORACLE_GASSTATION_BASE_URL")
	setDuration(&cfg.Oracle.GasStation.Timeout, "GASPILOT_ORACLE_GASSTATION_TIMEOUT")
	setStr(&cfg.Oracle.Scan.BaseURL, "GASPILOT_ORACLE_SCAN_BASE_URL")
	setStr(&cfg.Oracle.Scan.APIKey, "GASPILOT_ORACLE_SCAN_API_KEY")
	setDuration(&cfg.Oracle.Scan.Timeout, "GASPILOT_ORACLE_SCAN_TIMEOUT")
	setBool(&cfg.Oracle.RPC.Enabled, "GASPILOT_ORACLE_RPC_ENABLED")
	setStr(&cfg.Oracle.RPC.URL, "GASPILOT_ORACLE_RPC_URL")
	setDuration(&cfg.Oracle.RPC.Timeout, "GASPILOT_ORACLE_RPC_TIMEOUT")
	setInt(&cfg.Oracle.RPC.HistoryBlocks, "GASPILOT_ORACLE_RPC_HISTORY_BLOCKS")

	// ── Aggregator ──
	setDuration(&cfg.Aggregator.RefreshInterval, "GASPILOT_AGGREGATOR_REFRESH_INTERVAL")
	setInt(&cfg.Aggregator.MaxRetries, "GASPILOT_AGGREGATOR_MAX_RETRIES")

	// ── Policy ──
	setStr(&cfg.Policy.Aggressiveness, "GASPILOT_POLICY_AGGRESSIVENESS")
	setFloat64(&cfg.Policy.MaxWaitTimeSeconds, "GASPILOT_POLICY_MAX_WAIT_TIME_SECONDS")
	setFloat64(&cfg.Policy.MinSavingsPercent, "GASPILOT_POLICY_MIN_SAVINGS_PERCENT")
	setFloat64(&cfg.Policy.FeePercent, "GASPILOT_POLICY_FEE_PERCENT")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "GASPILOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "GASPILOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "GASPILOT_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "GASPILOT_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimitPerMin, "GASPILOT_SERVER_RATE_LIMIT_PER_MIN")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "GASPILOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "GASPILOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "GASPILOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "GASPILOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "GASPILOT_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "GASPILOT_REDIS_TLS_ENABLED")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "GASPILOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "GASPILOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "GASPILOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "GASPILOT_NOTIFY_EVENTS")
	setFloat64(&cfg.Notify.CongestionThreshold, "GASPILOT_NOTIFY_CONGESTION_THRESHOLD")
	setInt(&cfg.Notify.CongestionStreak, "GASPILOT_NOTIFY_CONGESTION_STREAK")
	setDuration(&cfg.Notify.Cooldown, "GASPILOT_NOTIFY_COOLDOWN")

	// ── Top-level ──
	setStr(&cfg.Mode, "GASPILOT_MODE")
	setStr(&cfg.LogLevel, "GASPILOT_LOG_LEVEL")
	setStr(&cfg.LogFormat, "GASPILOT_LOG_FORMAT")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
