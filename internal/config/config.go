// Package config defines the top-level configuration for the rebalancer and
// provides validation helpers.
package config

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/CryptoChem0000/clrebalancer/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by CLBOT_* environment variables.
type Config struct {
	Wallet    WalletConfig    `toml:"wallet"`
	HomeChain ChainConfig     `toml:"home_chain"`
	Remote    ChainConfig     `toml:"remote_chain"`
	Tokens    []TokenConfig   `toml:"tokens"`
	Pool      PoolConfig      `toml:"pool"`
	Rebalance RebalanceConfig `toml:"rebalance"`
	Venue     VenueConfig     `toml:"venue"`
	Bridge    BridgeConfig    `toml:"bridge"`
	Watch     WatchConfig     `toml:"watch"`
	State     StateConfig     `toml:"state"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// WalletConfig identifies the single account the bot signs with on both
// chains.
type WalletConfig struct {
	Address     string `toml:"address"`
	KeyPath     string `toml:"key_path"`
	KeyPassword string `toml:"key_password"`
}

// ChainConfig holds static per-chain parameters.
type ChainConfig struct {
	ID           string `toml:"id"`
	Name         string `toml:"name"`
	Prefix       string `toml:"prefix"`
	RPCEndpoint  string `toml:"rpc_endpoint"`
	RESTEndpoint string `toml:"rest_endpoint"`
	NativeDenom  string `toml:"native_denom"`
}

// ChainInfo converts to the domain representation.
func (c ChainConfig) ChainInfo() domain.ChainInfo {
	return domain.ChainInfo{
		ID:           c.ID,
		Name:         c.Name,
		Prefix:       c.Prefix,
		RPCEndpoint:  c.RPCEndpoint,
		RESTEndpoint: c.RESTEndpoint,
		NativeDenom:  c.NativeDenom,
	}
}

// TokenConfig registers one token the bot may hold or trade.
type TokenConfig struct {
	ChainID       string `toml:"chain_id"`
	Denom         string `toml:"denom"`
	Decimals      int    `toml:"decimals"`
	Name          string `toml:"name"`
	OriginDenom   string `toml:"origin_denom"`
	OriginChainID string `toml:"origin_chain_id"`
}

// Token converts to the domain representation.
func (t TokenConfig) Token() domain.Token {
	return domain.Token{
		ChainID:       t.ChainID,
		Denom:         t.Denom,
		Decimals:      t.Decimals,
		Name:          t.Name,
		OriginDenom:   t.OriginDenom,
		OriginChainID: t.OriginChainID,
	}
}

// RegistryTokens returns all configured tokens in domain form.
func (c *Config) RegistryTokens() []domain.Token {
	out := make([]domain.Token, 0, len(c.Tokens))
	for _, t := range c.Tokens {
		out = append(out, t.Token())
	}
	return out
}

// PoolConfig selects the managed pool and the range policy.
type PoolConfig struct {
	ID uint64 `toml:"id"`
	// ThresholdPercent is the symmetric in-range window, strictly between 50
	// and 100.
	ThresholdPercent float64 `toml:"threshold_percent"`
	// Band is the half-width of a new position's price range as a fraction,
	// e.g. "0.05" for a 5% band.
	Band string `toml:"band"`
}

// RebalanceConfig holds per-chain fee estimates and rebalance policy. Fee
// amounts are base units of the chain's native gas token.
type RebalanceConfig struct {
	HomeBridgeFee   string `toml:"home_bridge_fee"`
	HomeSwapFee     string `toml:"home_swap_fee"`
	RemoteBridgeFee string `toml:"remote_bridge_fee"`
	RemoteSwapFee   string `toml:"remote_swap_fee"`
	// PriceDivergenceWarn is the relative gap between pool and venue price
	// above which a warning is logged, as a fraction.
	PriceDivergenceWarn string `toml:"price_divergence_warn"`
}

// HomeFeeReserve returns the home-chain fee reserve: twice the sum of the
// bridge and swap fees, as a base-unit amount string.
func (r RebalanceConfig) HomeFeeReserve() string {
	return doubledSum(r.HomeBridgeFee, r.HomeSwapFee)
}

// RemoteFeeReserve returns the remote-chain fee reserve.
func (r RebalanceConfig) RemoteFeeReserve() string {
	return doubledSum(r.RemoteBridgeFee, r.RemoteSwapFee)
}

func doubledSum(a, b string) string {
	sum := new(big.Int)
	if n, ok := new(big.Int).SetString(a, 10); ok {
		sum.Add(sum, n)
	}
	if n, ok := new(big.Int).SetString(b, 10); ok {
		sum.Add(sum, n)
	}
	return sum.Mul(sum, big.NewInt(2)).String()
}

// VenueConfig holds the remote swap venue's endpoints.
type VenueConfig struct {
	RESTEndpoint string `toml:"rest_endpoint"`
	WSEndpoint   string `toml:"ws_endpoint"`
	// PriceTTL bounds how long a cached venue price stays usable.
	PriceTTL duration `toml:"price_ttl"`
}

// BridgeConfig holds bridge parameters.
type BridgeConfig struct {
	Endpoint string `toml:"endpoint"`
	// Timeout bounds how long one transfer may take to settle on the
	// destination chain before it counts as failed.
	Timeout duration `toml:"timeout"`
	// PollInterval is the settlement polling cadence.
	PollInterval duration `toml:"poll_interval"`
}

// WatchConfig holds watch-mode cadence parameters.
type WatchConfig struct {
	Interval duration `toml:"interval"`
}

// StateConfig locates the persisted pool/position ids.
type StateConfig struct {
	Path string `toml:"path"`
}

// PostgresConfig holds transaction-ledger database parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the price cache.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds object-storage parameters for ledger archival.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
	RetentionDays  int    `toml:"retention_days"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration so the TOML decoder can parse strings like
// "5m" or "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values. These
// match config.example.toml.
func Defaults() Config {
	return Config{
		HomeChain: ChainConfig{
			ID:           "osmosis-1",
			Name:         "osmosis",
			Prefix:       "osmo",
			RPCEndpoint:  "https://rpc.osmosis.zone",
			RESTEndpoint: "https://lcd.osmosis.zone",
			NativeDenom:  "uosmo",
		},
		Remote: ChainConfig{
			ID:           "archway-1",
			Name:         "archway",
			Prefix:       "archway",
			RPCEndpoint:  "https://rpc.mainnet.archway.io",
			RESTEndpoint: "https://api.mainnet.archway.io",
			NativeDenom:  "aarch",
		},
		Pool: PoolConfig{
			ThresholdPercent: 80,
			Band:             "0.05",
		},
		Rebalance: RebalanceConfig{
			HomeBridgeFee:       "10000",
			HomeSwapFee:         "10000",
			RemoteBridgeFee:     "300000000000000000",
			RemoteSwapFee:       "300000000000000000",
			PriceDivergenceWarn: "0.05",
		},
		Venue: VenueConfig{
			PriceTTL: duration{30 * time.Second},
		},
		Bridge: BridgeConfig{
			Timeout:      duration{10 * time.Minute},
			PollInterval: duration{10 * time.Second},
		},
		Watch: WatchConfig{
			Interval: duration{5 * time.Minute},
		},
		State: StateConfig{
			Path: "clbot-state.json",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "clbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:       false,
			Region:        "us-east-1",
			Bucket:        "clbot-ledger",
			Prefix:        "archive",
			RetentionDays: 90,
		},
		Notify: NotifyConfig{
			Events: []string{"position_created", "position_rebalanced", "run_error"},
		},
		Mode:     "run",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"run":   true,
	"watch": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: run, watch)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Wallet.Address == "" && c.Wallet.KeyPath == "" {
		errs = append(errs, "wallet: either address or key_path must be set")
	}
	if c.Wallet.KeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when key_path is set")
	}

	for _, chain := range []struct {
		name string
		cfg  ChainConfig
	}{{"home_chain", c.HomeChain}, {"remote_chain", c.Remote}} {
		if chain.cfg.ID == "" {
			errs = append(errs, chain.name+": id must not be empty")
		}
		if chain.cfg.RESTEndpoint == "" {
			errs = append(errs, chain.name+": rest_endpoint must not be empty")
		}
		if chain.cfg.NativeDenom == "" {
			errs = append(errs, chain.name+": native_denom must not be empty")
		}
	}
	if c.HomeChain.ID != "" && c.HomeChain.ID == c.Remote.ID {
		errs = append(errs, "home_chain and remote_chain must differ")
	}

	if c.Pool.ID == 0 {
		errs = append(errs, "pool: id must be set")
	}
	if c.Pool.ThresholdPercent <= 50 || c.Pool.ThresholdPercent >= 100 {
		errs = append(errs, fmt.Sprintf("pool: threshold_percent must be strictly between 50 and 100, got %v", c.Pool.ThresholdPercent))
	}
	if band, err := strconv.ParseFloat(c.Pool.Band, 64); err != nil || band <= 0 || band >= 1 {
		errs = append(errs, fmt.Sprintf("pool: band must be a fraction in (0, 1), got %q", c.Pool.Band))
	}

	for _, fee := range []struct {
		name  string
		value string
	}{
		{"home_bridge_fee", c.Rebalance.HomeBridgeFee},
		{"home_swap_fee", c.Rebalance.HomeSwapFee},
		{"remote_bridge_fee", c.Rebalance.RemoteBridgeFee},
		{"remote_swap_fee", c.Rebalance.RemoteSwapFee},
	} {
		if n, ok := new(big.Int).SetString(fee.value, 10); !ok || n.Sign() < 0 {
			errs = append(errs, fmt.Sprintf("rebalance: %s must be a non-negative base-unit integer, got %q", fee.name, fee.value))
		}
	}

	if len(c.Tokens) < 2 {
		errs = append(errs, "tokens: at least the pool pair must be registered")
	}

	if c.Venue.RESTEndpoint == "" {
		errs = append(errs, "venue: rest_endpoint must not be empty")
	}
	if c.Bridge.Endpoint == "" {
		errs = append(errs, "bridge: endpoint must not be empty")
	}
	if c.Bridge.Timeout.Duration <= 0 {
		errs = append(errs, "bridge: timeout must be positive")
	}

	if strings.ToLower(c.Mode) == "watch" && c.Watch.Interval.Duration <= 0 {
		errs = append(errs, "watch: interval must be positive in watch mode")
	}
	if c.State.Path == "" {
		errs = append(errs, "state: path must not be empty")
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.RetentionDays < 1 {
			errs = append(errs, "s3: retention_days must be >= 1 when enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", domain.ErrMissingConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}
