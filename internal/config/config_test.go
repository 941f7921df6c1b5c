package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/CryptoChem0000/clrebalancer/internal/domain"
)

// validConfig fills in the fields Defaults leaves empty.
func validConfig() Config {
	cfg := Defaults()
	cfg.Wallet.Address = "osmo1wallet"
	cfg.Pool.ID = 1066
	cfg.Tokens = []TokenConfig{
		{ChainID: "osmosis-1", Denom: "uosmo", Decimals: 6, Name: "OSMO"},
		{ChainID: "osmosis-1", Denom: "ibc/USDC", Decimals: 6, Name: "USDC", OriginDenom: "uusdc", OriginChainID: "noble-1"},
	}
	cfg.Venue.RESTEndpoint = "https://dex.example/api"
	cfg.Bridge.Endpoint = "https://relayer.example/api"
	return cfg
}

func TestValidate_OK(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "replay"
	cfg.Pool.ID = 0
	cfg.Pool.ThresholdPercent = 50
	cfg.Pool.Band = "1.5"
	cfg.Rebalance.HomeBridgeFee = "-5"
	cfg.Bridge.Endpoint = ""

	err := cfg.Validate()
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrMissingConfig)
	require.ErrorContains(t, err, `unknown mode "replay"`)
	require.ErrorContains(t, err, "pool: id must be set")
	require.ErrorContains(t, err, "threshold_percent")
	require.ErrorContains(t, err, "band")
	require.ErrorContains(t, err, "home_bridge_fee")
	require.ErrorContains(t, err, "bridge: endpoint")
}

func TestValidate_WalletRequiresPassword(t *testing.T) {
	cfg := validConfig()
	cfg.Wallet.Address = ""
	cfg.Wallet.KeyPath = "key.json"

	err := cfg.Validate()
	require.ErrorContains(t, err, "key_password")
}

func TestValidate_ChainsMustDiffer(t *testing.T) {
	cfg := validConfig()
	cfg.Remote = cfg.HomeChain

	err := cfg.Validate()
	require.ErrorContains(t, err, "must differ")
}

func TestFeeReserves(t *testing.T) {
	r := RebalanceConfig{HomeBridgeFee: "10000", HomeSwapFee: "15000", RemoteBridgeFee: "3", RemoteSwapFee: "4"}
	require.Equal(t, "50000", r.HomeFeeReserve())
	require.Equal(t, "14", r.RemoteFeeReserve())
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "watch"

[pool]
id = 1221
threshold_percent = 75.0

[venue]
rest_endpoint = "https://dex.example/api"
price_ttl = "45s"

[bridge]
endpoint = "https://relayer.example/api"

[[tokens]]
chain_id = "osmosis-1"
denom = "uosmo"
decimals = 6
name = "OSMO"
`), 0o600))

	t.Setenv("CLBOT_POOL_ID", "1400")
	t.Setenv("CLBOT_WALLET_ADDRESS", "osmo1override")
	t.Setenv("CLBOT_REDIS_ENABLED", "true")
	t.Setenv("CLBOT_WATCH_INTERVAL", "90s")

	cfg, err := Load(path)
	require.NoError(t, err)

	// File overrides defaults; env overrides file.
	require.Equal(t, "watch", cfg.Mode)
	require.Equal(t, uint64(1400), cfg.Pool.ID)
	require.Equal(t, 75.0, cfg.Pool.ThresholdPercent)
	require.Equal(t, "osmo1override", cfg.Wallet.Address)
	require.True(t, cfg.Redis.Enabled)
	require.Equal(t, 45*time.Second, cfg.Venue.PriceTTL.Duration)
	require.Equal(t, 90*time.Second, cfg.Watch.Interval.Duration)

	// Defaults survive where neither file nor env set anything.
	require.Equal(t, "osmosis-1", cfg.HomeChain.ID)
	require.Equal(t, "clbot-state.json", cfg.State.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}
