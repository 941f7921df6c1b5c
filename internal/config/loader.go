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
// built-in defaults, applies CLBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CLBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.Address, "CLBOT_WALLET_ADDRESS")
	setStr(&cfg.Wallet.KeyPath, "CLBOT_WALLET_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "CLBOT_WALLET_KEY_PASSWORD")

	// ── Chains ──
	setStr(&cfg.HomeChain.ID, "CLBOT_HOME_CHAIN_ID")
	setStr(&cfg.HomeChain.RPCEndpoint, "CLBOT_HOME_RPC_ENDPOINT")
	setStr(&cfg.HomeChain.RESTEndpoint, "CLBOT_HOME_REST_ENDPOINT")
	setStr(&cfg.HomeChain.NativeDenom, "CLBOT_HOME_NATIVE_DENOM")
	setStr(&cfg.Remote.ID, "CLBOT_REMOTE_CHAIN_ID")
	setStr(&cfg.Remote.RPCEndpoint, "CLBOT_REMOTE_RPC_ENDPOINT")
	setStr(&cfg.Remote.RESTEndpoint, "CLBOT_REMOTE_REST_ENDPOINT")
	setStr(&cfg.Remote.NativeDenom, "CLBOT_REMOTE_NATIVE_DENOM")

	// ── Pool ──
	setUint64(&cfg.Pool.ID, "CLBOT_POOL_ID")
	setFloat64(&cfg.Pool.ThresholdPercent, "CLBOT_POOL_THRESHOLD_PERCENT")
	setStr(&cfg.Pool.Band, "CLBOT_POOL_BAND")

	// ── Rebalance ──
	setStr(&cfg.Rebalance.HomeBridgeFee, "CLBOT_REBALANCE_HOME_BRIDGE_FEE")
	setStr(&cfg.Rebalance.HomeSwapFee, "CLBOT_REBALANCE_HOME_SWAP_FEE")
	setStr(&cfg.Rebalance.RemoteBridgeFee, "CLBOT_REBALANCE_REMOTE_BRIDGE_FEE")
	setStr(&cfg.Rebalance.RemoteSwapFee, "CLBOT_REBALANCE_REMOTE_SWAP_FEE")
	setStr(&cfg.Rebalance.PriceDivergenceWarn, "CLBOT_REBALANCE_PRICE_DIVERGENCE_WARN")

	// ── Venue / Bridge ──
	setStr(&cfg.Venue.RESTEndpoint, "CLBOT_VENUE_REST_ENDPOINT")
	setStr(&cfg.Venue.WSEndpoint, "CLBOT_VENUE_WS_ENDPOINT")
	setDuration(&cfg.Venue.PriceTTL, "CLBOT_VENUE_PRICE_TTL")
	setStr(&cfg.Bridge.Endpoint, "CLBOT_BRIDGE_ENDPOINT")
	setDuration(&cfg.Bridge.Timeout, "CLBOT_BRIDGE_TIMEOUT")
	setDuration(&cfg.Bridge.PollInterval, "CLBOT_BRIDGE_POLL_INTERVAL")

	// ── Watch / State ──
	setDuration(&cfg.Watch.Interval, "CLBOT_WATCH_INTERVAL")
	setStr(&cfg.State.Path, "CLBOT_STATE_PATH")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "CLBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CLBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CLBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CLBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CLBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CLBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CLBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CLBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CLBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CLBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "CLBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "CLBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CLBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CLBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CLBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CLBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CLBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CLBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CLBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CLBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "CLBOT_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "CLBOT_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "CLBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CLBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "CLBOT_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.RetentionDays, "CLBOT_S3_RETENTION_DAYS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CLBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CLBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CLBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CLBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "CLBOT_MODE")
	setStr(&cfg.LogLevel, "CLBOT_LOG_LEVEL")
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

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
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
