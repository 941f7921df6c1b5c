// Package orchestrator drives the position lifecycle: evaluate the managed
// position against the pool price, and when it has drifted out of range,
// withdraw it, rebalance the pair 50/50 across chains, and open a fresh
// position centered on the current price.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"

	"github.com/CryptoChem0000/clrebalancer/internal/domain"
	"github.com/CryptoChem0000/clrebalancer/internal/notify"
	"github.com/CryptoChem0000/clrebalancer/internal/position"
	"github.com/CryptoChem0000/clrebalancer/internal/state"
	"github.com/CryptoChem0000/clrebalancer/internal/ticks"
)

// Rebalancer equalizes the pair's value across chains ahead of a deposit.
type Rebalancer interface {
	Rebalance(ctx context.Context, cycleID string, token0, token1 domain.Token, refPrice *apd.Decimal) (domain.RebalanceResult, error)
}

// Notifier delivers lifecycle alerts. notify.Notifier satisfies it.
type Notifier interface {
	Notify(ctx context.Context, event notify.Event, title, message string) error
}

// Config carries the orchestrator's collaborators and policy.
type Config struct {
	PoolID      uint64
	HomeChainID string

	// ThresholdPercent is the symmetric in-range window, strictly between 50
	// and 100.
	ThresholdPercent float64
	// Band is the half-width of a new position's price range as a fraction,
	// e.g. "0.05" for price*(1-0.05) .. price*(1+0.05).
	Band string

	Pool       domain.PoolClient
	Rebalancer Rebalancer
	Ledger     domain.TransactionLedger
	State      *state.Store
	Notifier   Notifier
	Logger     *slog.Logger
}

// Orchestrator runs one position lifecycle cycle at a time. All on-chain
// writes go through the wallet's single account, so Run must never be called
// concurrently with itself.
type Orchestrator struct {
	poolID      uint64
	homeChainID string
	threshold   float64
	band        *apd.Decimal

	pool     domain.PoolClient
	reb      Rebalancer
	ledger   domain.TransactionLedger
	state    *state.Store
	notifier Notifier
	logger   *slog.Logger
}

// New validates the config and builds an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.ThresholdPercent <= 50 || cfg.ThresholdPercent >= 100 {
		return nil, fmt.Errorf("orchestrator: %w: got %v", domain.ErrInvalidThreshold, cfg.ThresholdPercent)
	}
	band, _, err := apd.NewFromString(cfg.Band)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: band %q: %w", cfg.Band, err)
	}
	if band.Sign() <= 0 {
		return nil, fmt.Errorf("orchestrator: band %q must be positive", cfg.Band)
	}
	if cfg.Pool == nil || cfg.Rebalancer == nil || cfg.Ledger == nil || cfg.State == nil {
		return nil, errors.New("orchestrator: pool, rebalancer, ledger and state are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		poolID:      cfg.PoolID,
		homeChainID: cfg.HomeChainID,
		threshold:   cfg.ThresholdPercent,
		band:        band,
		pool:        cfg.Pool,
		reb:         cfg.Rebalancer,
		ledger:      cfg.Ledger,
		state:       cfg.State,
		notifier:    cfg.Notifier,
		logger:      logger.With("component", "orchestrator"),
	}, nil
}

// Run executes one cycle: reconcile strays, evaluate the managed position,
// and withdraw/rebalance/recreate when it is out of range. A cycle that finds
// the position in range performs no writes at all.
func (o *Orchestrator) Run(ctx context.Context) (domain.RunResult, error) {
	cycleID := uuid.NewString()
	log := o.logger.With("cycle_id", cycleID)

	res, err := o.run(ctx, cycleID, log)
	if err != nil {
		log.Error("cycle failed", "error", err)
		o.alert(ctx, notify.EventRunError, "Rebalancer cycle failed", err.Error())
		return domain.RunResult{Action: domain.ActionError, Error: err.Error()}, err
	}
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, cycleID string, log *slog.Logger) (domain.RunResult, error) {
	st, err := o.state.Load()
	if err != nil {
		return domain.RunResult{}, err
	}
	pool, err := o.pool.GetPoolInfo(ctx, o.poolID)
	if err != nil {
		return domain.RunResult{}, fmt.Errorf("orchestrator: pool %d: %w", o.poolID, err)
	}

	if err := o.reconcileStrays(ctx, cycleID, st, pool, log); err != nil {
		return domain.RunResult{}, err
	}

	withdrew := false
	if st.PositionID != 0 {
		pos, err := o.pool.GetPositionInfo(ctx, st.PositionID)
		switch {
		case errors.Is(err, domain.ErrPositionNotFound):
			// Withdrawn out-of-band or lost to a crash mid-cycle; fall through
			// to the create path.
			log.Warn("managed position missing on chain, recreating", "position_id", st.PositionID)
			st.PositionID = 0
			if err := o.state.Save(st); err != nil {
				return domain.RunResult{}, err
			}
		case err != nil:
			return domain.RunResult{}, fmt.Errorf("orchestrator: position %d: %w", st.PositionID, err)
		default:
			status, err := position.EvaluateTick(pool.CurrentTick, pool.TickSpacing, pos, o.threshold)
			if err != nil {
				return domain.RunResult{}, err
			}
			if status.IsInRange {
				log.Info("position in range",
					"position_id", pos.PositionID,
					"balance_pct", status.PercentageBalance,
					"current_tick", status.CurrentTick)
				return domain.RunResult{Action: domain.ActionNone, PositionID: pos.PositionID, Status: status}, nil
			}

			log.Info("position out of range, withdrawing",
				"position_id", pos.PositionID,
				"balance_pct", status.PercentageBalance,
				"range", fmt.Sprintf("[%d, %d]", pos.LowerTick, pos.UpperTick),
				"current_tick", status.CurrentTick)
			if err := o.withdraw(ctx, cycleID, pos.PositionID, domain.TxTypeWithdrawPosition); err != nil {
				return domain.RunResult{}, err
			}
			st.PositionID = 0
			if err := o.state.Save(st); err != nil {
				return domain.RunResult{}, err
			}
			withdrew = true
		}
	}

	positionID, status, err := o.rebalanceAndCreate(ctx, cycleID, pool, log)
	if err != nil {
		return domain.RunResult{}, err
	}

	action := domain.ActionCreated
	event := notify.EventPositionCreated
	title := "Position created"
	if withdrew {
		action = domain.ActionRebalanced
		event = notify.EventPositionRebalanced
		title = "Position rebalanced"
	}
	o.alert(ctx, event, title, fmt.Sprintf(
		"pool %d position %d, price balance %.1f%%", o.poolID, positionID, status.PercentageBalance))
	return domain.RunResult{Action: action, PositionID: positionID, Status: status}, nil
}

// rebalanceAndCreate funds and opens a new position around the current price.
// The pool is re-read after rebalancing because bridging takes long enough for
// the price to move.
func (o *Orchestrator) rebalanceAndCreate(ctx context.Context, cycleID string, pool domain.Pool, log *slog.Logger) (uint64, domain.RangeStatus, error) {
	rres, err := o.reb.Rebalance(ctx, cycleID, pool.Token0, pool.Token1, pool.CurrentPrice)
	if err != nil {
		return 0, domain.RangeStatus{}, err
	}
	log.Info("rebalance complete",
		"outcome", rres.Outcome.String(),
		"balance0", rres.Balance0.Amount,
		"balance1", rres.Balance1.Amount)
	if rres.Balance0.IsZero() && rres.Balance1.IsZero() {
		return 0, domain.RangeStatus{}, fmt.Errorf("orchestrator: no funds available to open a position in pool %d", o.poolID)
	}

	fresh, err := o.pool.GetPoolInfo(ctx, o.poolID)
	if err != nil {
		return 0, domain.RangeStatus{}, fmt.Errorf("orchestrator: refresh pool %d: %w", o.poolID, err)
	}
	warnOnPriceDrift(log, pool.CurrentPrice, fresh.CurrentPrice)

	lower, upper, err := ticks.RangeForBand(fresh.CurrentPrice, o.band, fresh.TickSpacing)
	if err != nil {
		return 0, domain.RangeStatus{}, err
	}

	created, err := o.pool.CreatePosition(ctx, domain.CreatePositionParams{
		PoolID:    o.poolID,
		LowerTick: lower,
		UpperTick: upper,
		Amount0:   rres.Balance0,
		Amount1:   rres.Balance1,
	})
	if err != nil {
		return 0, domain.RangeStatus{}, fmt.Errorf("orchestrator: create position: %w", err)
	}
	o.record(ctx, cycleID, created.TxHash, 0, domain.TxTypeCreatePosition, created.Amount0, map[string]any{
		"position_id": created.PositionID,
		"pool_id":     o.poolID,
		"lower_tick":  lower,
		"upper_tick":  upper,
		"amount1":     created.Amount1.Amount,
		"denom1":      created.Amount1.Token.Denom,
	})

	if err := o.state.Save(state.State{PoolID: o.poolID, PositionID: created.PositionID}); err != nil {
		return 0, domain.RangeStatus{}, err
	}
	log.Info("position created",
		"position_id", created.PositionID,
		"range", fmt.Sprintf("[%d, %d]", lower, upper),
		"amount0", created.Amount0.Amount,
		"amount1", created.Amount1.Amount)

	status, err := position.EvaluateTick(fresh.CurrentTick, fresh.TickSpacing,
		domain.Position{PositionID: created.PositionID, PoolID: o.poolID, LowerTick: lower, UpperTick: upper},
		o.threshold)
	if err != nil {
		return 0, domain.RangeStatus{}, err
	}
	return created.PositionID, status, nil
}

// reconcileStrays withdraws any position in the pool that the bot does not
// track. Strays are created when a crash lands between CreatePosition and the
// state save; their funds rejoin the pair before any sizing decision.
func (o *Orchestrator) reconcileStrays(ctx context.Context, cycleID string, st state.State, pool domain.Pool, log *slog.Logger) error {
	open, err := o.pool.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: list positions: %w", err)
	}
	for _, p := range open {
		if p.PoolID != pool.ID || p.PositionID == st.PositionID {
			continue
		}
		log.Warn("withdrawing untracked position", "position_id", p.PositionID)
		if err := o.withdraw(ctx, cycleID, p.PositionID, domain.TxTypeWithdrawReconcile); err != nil {
			return err
		}
	}
	return nil
}

// withdraw removes a full position and records the principal plus any rewards
// collected in the same transaction.
func (o *Orchestrator) withdraw(ctx context.Context, cycleID string, positionID uint64, typ domain.TransactionType) error {
	res, err := o.pool.WithdrawPosition(ctx, domain.WithdrawPositionParams{PositionID: positionID})
	if err != nil {
		return fmt.Errorf("orchestrator: withdraw position %d: %w", positionID, err)
	}
	o.record(ctx, cycleID, res.TxHash, 0, typ, res.Amount0, map[string]any{
		"position_id": positionID,
		"amount1":     res.Amount1.Amount,
		"denom1":      res.Amount1.Token.Denom,
	})
	for i, reward := range res.Rewards {
		o.record(ctx, cycleID, res.TxHash, i+1, domain.TxTypeCollectRewards, reward, map[string]any{
			"position_id": positionID,
		})
	}
	return nil
}

// record writes one ledger entry. The on-chain action has already confirmed,
// so a ledger failure is logged rather than propagated.
func (o *Orchestrator) record(ctx context.Context, cycleID, txHash string, actionIndex int, typ domain.TransactionType, amt domain.TokenAmount, details map[string]any) {
	rec := domain.TransactionRecord{
		ID:          uuid.NewString(),
		CycleID:     cycleID,
		ChainID:     o.homeChainID,
		TxHash:      txHash,
		ActionIndex: actionIndex,
		Type:        typ,
		Denom:       amt.Token.Denom,
		Amount:      amt.Amount,
		Details:     details,
		CreatedAt:   time.Now().UTC(),
	}
	if err := o.ledger.AddTransaction(ctx, rec); err != nil {
		o.logger.Error("ledger write failed", "type", string(typ), "tx_hash", txHash, "error", err)
	}
}

func (o *Orchestrator) alert(ctx context.Context, event notify.Event, title, message string) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Notify(ctx, event, title, message); err != nil {
		o.logger.Error("notification failed", "event", string(event), "error", err)
	}
}

// warnOnPriceDrift logs when the price moved more than 1% while the rebalance
// was in flight. The fresh price is still used; the warning is for operators
// watching fill quality.
func warnOnPriceDrift(log *slog.Logger, before, after *apd.Decimal) {
	if before == nil || after == nil || before.Sign() <= 0 {
		return
	}
	ctx := apd.BaseContext.WithPrecision(50)
	diff := new(apd.Decimal)
	if _, err := ctx.Sub(diff, after, before); err != nil {
		return
	}
	diff.Abs(diff)
	rel := new(apd.Decimal)
	if _, err := ctx.Quo(rel, diff, before); err != nil {
		return
	}
	threshold := apd.New(1, -2)
	if rel.Cmp(threshold) > 0 {
		log.Warn("pool price moved during rebalance",
			"price_before", before.String(),
			"price_after", after.String(),
			"relative_move", rel.String())
	}
}
