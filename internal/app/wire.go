package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/CryptoChem0000/clrebalancer/internal/blob/s3"
	"github.com/CryptoChem0000/clrebalancer/internal/cache/redis"
	"github.com/CryptoChem0000/clrebalancer/internal/config"
	"github.com/CryptoChem0000/clrebalancer/internal/crypto"
	"github.com/CryptoChem0000/clrebalancer/internal/domain"
	"github.com/CryptoChem0000/clrebalancer/internal/notify"
	"github.com/CryptoChem0000/clrebalancer/internal/orchestrator"
	"github.com/CryptoChem0000/clrebalancer/internal/platform/bridge"
	"github.com/CryptoChem0000/clrebalancer/internal/platform/osmosis"
	"github.com/CryptoChem0000/clrebalancer/internal/platform/venue"
	"github.com/CryptoChem0000/clrebalancer/internal/rebalance"
	"github.com/CryptoChem0000/clrebalancer/internal/registry"
	"github.com/CryptoChem0000/clrebalancer/internal/state"
	"github.com/CryptoChem0000/clrebalancer/internal/store/postgres"
)

// Dependencies bundles the wired top-level collaborators the operating modes
// run. Feed and Archiver are nil when their backing services are disabled.
type Dependencies struct {
	Orchestrator *orchestrator.Orchestrator
	Feed         *venue.Feed
	Archiver     *s3blob.Archiver
	Notifier     *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function to call on
// shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// --- Wallet ---
	homeSigner, remoteSigner, err := buildSigners(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: wallet: %w", err)
	}

	reg := registry.New(cfg.RegistryTokens())
	stateStore := state.NewStore(cfg.State.Path)

	// --- PostgreSQL transaction ledger ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}
	ledger := postgres.NewTransactionStore(pgClient.Pool())

	// --- Redis price cache (optional) ---
	var priceCache domain.PriceCache
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		priceCache = redis.NewPriceCache(redisClient, cfg.Venue.PriceTTL.Duration)
	}

	// --- Chain clients ---
	homeChain := cfg.HomeChain.ChainInfo()
	remoteChain := cfg.Remote.ChainInfo()

	homeClient := osmosis.NewClient(homeChain, homeSigner, reg, logger)
	remoteClient := osmosis.NewClient(remoteChain, remoteSigner, reg, logger)

	venueClient := venue.NewClient(cfg.Venue.RESTEndpoint, remoteChain, remoteSigner,
		priceCache, cfg.Venue.PriceTTL.Duration, logger)

	addresses := map[string]string{
		homeChain.ID:   homeSigner.Address(),
		remoteChain.ID: remoteSigner.Address(),
	}
	bridgeClient := bridge.NewClient(cfg.Bridge.Endpoint, homeSigner, addresses, reg,
		cfg.Bridge.Timeout.Duration, cfg.Bridge.PollInterval.Duration, logger)

	// --- Rebalancer and orchestrator ---
	reb, err := rebalance.New(rebalance.Config{
		HomeChain:           homeChain,
		RemoteChain:         remoteChain,
		HomeAccount:         homeClient,
		RemoteAccount:       remoteClient,
		Bridge:              bridgeClient,
		Venue:               venueClient,
		Ledger:              ledger,
		Registry:            reg,
		HomeFeeReserve:      cfg.Rebalance.HomeFeeReserve(),
		RemoteFeeReserve:    cfg.Rebalance.RemoteFeeReserve(),
		PriceDivergenceWarn: cfg.Rebalance.PriceDivergenceWarn,
		Logger:              logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: rebalancer: %w", err)
	}

	notifier := buildNotifier(cfg, logger)

	orch, err := orchestrator.New(orchestrator.Config{
		PoolID:           cfg.Pool.ID,
		HomeChainID:      homeChain.ID,
		ThresholdPercent: cfg.Pool.ThresholdPercent,
		Band:             cfg.Pool.Band,
		Pool:             homeClient,
		Rebalancer:       reb,
		Ledger:           ledger,
		State:            stateStore,
		Notifier:         notifier,
		Logger:           logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: orchestrator: %w", err)
	}

	deps := &Dependencies{
		Orchestrator: orch,
		Notifier:     notifier,
	}

	// --- Venue ticker feed (needs the price cache to be useful) ---
	if priceCache != nil && cfg.Venue.WSEndpoint != "" {
		deps.Feed = venue.NewFeed(cfg.Venue.WSEndpoint,
			remotePairs(cfg.RegistryTokens(), remoteChain.ID), priceCache, logger)
	}

	// --- S3 ledger archival (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), ledger,
			cfg.S3.Prefix, cfg.S3.RetentionDays, logger)
	}

	return deps, cleanup, nil
}

// buildSigners resolves the wallet into one signer per chain: the same key
// renders to different bech32 addresses under each chain's prefix. Without a
// key the app runs read-only and fails on the first write.
func buildSigners(cfg *config.Config, logger *slog.Logger) (home, remote domain.Signer, err error) {
	if cfg.Wallet.KeyPath == "" {
		logger.Warn("no wallet key configured, chain writes will fail",
			slog.String("address", cfg.Wallet.Address))
		s := crypto.NewStaticSigner(cfg.Wallet.Address)
		return s, s, nil
	}

	key, err := crypto.LoadKey(crypto.KeyConfig{
		KeyPath:     cfg.Wallet.KeyPath,
		KeyPassword: cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, nil, err
	}

	homeSigner, err := crypto.NewWalletSigner(key, cfg.HomeChain.Prefix)
	if err != nil {
		return nil, nil, err
	}
	remoteSigner, err := crypto.NewWalletSigner(key, cfg.Remote.Prefix)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Wallet.Address != "" && cfg.Wallet.Address != homeSigner.Address() {
		return nil, nil, fmt.Errorf("configured address %s does not match key address %s",
			cfg.Wallet.Address, homeSigner.Address())
	}
	return homeSigner, remoteSigner, nil
}

func buildNotifier(cfg *config.Config, logger *slog.Logger) *notify.Notifier {
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	events := make([]notify.Event, 0, len(cfg.Notify.Events))
	for _, e := range cfg.Notify.Events {
		events = append(events, notify.Event(e))
	}
	return notify.NewNotifier(senders, events, logger)
}

// remotePairs lists every ordered pair of remote-chain denoms so the ticker
// feed covers whichever direction the rebalancer quotes.
func remotePairs(tokens []domain.Token, remoteChainID string) []string {
	var denoms []string
	for _, t := range tokens {
		if t.ChainID == remoteChainID {
			denoms = append(denoms, t.Denom)
		}
	}
	var pairs []string
	for _, a := range denoms {
		for _, b := range denoms {
			if a != b {
				pairs = append(pairs, a+"/"+b)
			}
		}
	}
	return pairs
}
