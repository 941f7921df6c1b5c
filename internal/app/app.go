// Package app provides top-level application lifecycle management for the
// rebalancer. It wires the ledger, caches, chain clients and orchestrator
// together and runs the configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/CryptoChem0000/clrebalancer/internal/config"
)

// App is the root application object. It owns the configuration, logger, and
// the cleanup functions registered during wiring.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies and runs the configured mode until it completes
// (run mode) or the context is cancelled (watch mode).
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting rebalancer",
		slog.String("mode", a.cfg.Mode),
		slog.Uint64("pool_id", a.cfg.Pool.ID),
		slog.String("home_chain", a.cfg.HomeChain.ID),
		slog.String("remote_chain", a.cfg.Remote.ID),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(a.cfg.Mode) {
	case "run":
		return a.RunMode(ctx, deps)
	case "watch":
		return a.WatchMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. Safe to call
// multiple times.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
