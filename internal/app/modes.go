package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CryptoChem0000/clrebalancer/internal/orchestrator"
)

// archiveEvery is how often watch mode sweeps cold ledger records to S3.
const archiveEvery = 24 * time.Hour

// RunMode executes exactly one orchestration cycle and exits. Archival runs
// after the cycle; an archival failure is logged but does not fail the run.
func (a *App) RunMode(ctx context.Context, deps *Dependencies) error {
	res, err := deps.Orchestrator.Run(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("cycle complete",
		slog.String("action", string(res.Action)),
		slog.Uint64("position_id", res.PositionID))

	if deps.Archiver != nil {
		if _, err := deps.Archiver.Run(ctx); err != nil {
			a.logger.Warn("ledger archival failed", slog.Any("error", err))
		}
	}
	return nil
}

// WatchMode runs cycles on the configured interval until the context is
// cancelled, alongside the venue ticker feed and the periodic archiver when
// those are enabled.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Orchestrator.Watch(ctx, a.cfg.Watch.Interval.Duration, orchestrator.DefaultRetryPolicy)
	})

	if deps.Feed != nil {
		g.Go(func() error {
			return deps.Feed.Run(ctx)
		})
	}

	if deps.Archiver != nil {
		g.Go(func() error {
			return a.archiveLoop(ctx, deps)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *App) archiveLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(archiveEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := deps.Archiver.Run(ctx); err != nil {
				a.logger.Warn("ledger archival failed", slog.Any("error", err))
			}
		}
	}
}
