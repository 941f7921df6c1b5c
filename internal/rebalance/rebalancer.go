// Package rebalance equalizes the value of a token pair held across two
// chains so the pair can fund a 50/50 concentrated-liquidity deposit. Swaps
// execute on the remote venue; the home chain only ever sends and receives
// bridge transfers.
package rebalance

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"

	"github.com/CryptoChem0000/clrebalancer/internal/domain"
	"github.com/CryptoChem0000/clrebalancer/internal/registry"
)

// tolerance is the relative imbalance below which the pair counts as already
// balanced: |v0-v1| / (v0+v1) < 0.1%.
var tolerance = mustDec("0.001")

// Config carries the collaborators and policy for a Rebalancer.
type Config struct {
	HomeChain   domain.ChainInfo
	RemoteChain domain.ChainInfo

	HomeAccount   domain.ChainAccount
	RemoteAccount domain.ChainAccount
	Bridge        domain.BridgeClient
	Venue         domain.SwapClient
	Ledger        domain.TransactionLedger
	Registry      *registry.Registry

	// Fee reserves in base units of each chain's native gas token, held back
	// from any spend decision. Config computes these as twice the sum of the
	// chain's bridge and swap fees.
	HomeFeeReserve   string
	RemoteFeeReserve string

	// PriceDivergenceWarn is the relative gap between the reference price and
	// the venue price above which a warning is logged, e.g. "0.05" for 5%.
	PriceDivergenceWarn string

	Logger *slog.Logger
}

// Rebalancer implements the cross-chain 50/50 rebalance. It performs no
// internal retries: any bridge or swap error aborts the invocation and the
// next cycle reconciles whatever partial state remains.
type Rebalancer struct {
	homeChain   domain.ChainInfo
	remoteChain domain.ChainInfo

	homeAccount   domain.ChainAccount
	remoteAccount domain.ChainAccount
	bridge        domain.BridgeClient
	venue         domain.SwapClient
	ledger        domain.TransactionLedger
	registry      *registry.Registry

	homeReserve    *big.Int
	remoteReserve  *big.Int
	divergenceWarn *apd.Decimal

	logger *slog.Logger
}

// New validates the config and builds a Rebalancer.
func New(cfg Config) (*Rebalancer, error) {
	homeReserve, err := parseReserve(cfg.HomeFeeReserve)
	if err != nil {
		return nil, fmt.Errorf("rebalance: home fee reserve: %w", err)
	}
	remoteReserve, err := parseReserve(cfg.RemoteFeeReserve)
	if err != nil {
		return nil, fmt.Errorf("rebalance: remote fee reserve: %w", err)
	}

	warn := mustDec("0.05")
	if cfg.PriceDivergenceWarn != "" {
		warn, _, err = apd.NewFromString(cfg.PriceDivergenceWarn)
		if err != nil {
			return nil, fmt.Errorf("rebalance: price divergence warn: %w", err)
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Rebalancer{
		homeChain:      cfg.HomeChain,
		remoteChain:    cfg.RemoteChain,
		homeAccount:    cfg.HomeAccount,
		remoteAccount:  cfg.RemoteAccount,
		bridge:         cfg.Bridge,
		venue:          cfg.Venue,
		ledger:         cfg.Ledger,
		registry:       cfg.Registry,
		homeReserve:    homeReserve,
		remoteReserve:  remoteReserve,
		divergenceWarn: warn,
		logger:         logger.With("component", "rebalancer"),
	}, nil
}

func parseReserve(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return n, nil
}

func mustDec(s string) *apd.Decimal {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Rebalance moves value between token0 and token1 until the pair is split
// 50/50 by value at refPrice (token1 per token0, taken from the position's own
// pool). It returns the outcome and the post-rebalance home-chain balances.
//
// Swap sizing is closed form. Moving token0 into token1 at venue price p:
// a = (v0-v1) / (refPrice + p). Moving token1 into token0:
// a = (v1-v0) * p / (p + refPrice). Both leave the two value legs equal when
// the venue fills at p.
func (r *Rebalancer) Rebalance(ctx context.Context, cycleID string, token0, token1 domain.Token, refPrice *apd.Decimal) (domain.RebalanceResult, error) {
	b0, b1, err := r.gatherBalances(ctx, token0, token1)
	if err != nil {
		return domain.RebalanceResult{}, err
	}

	if b0.TotalAvailableBalance.IsZero() && b1.TotalAvailableBalance.IsZero() {
		return domain.RebalanceResult{}, fmt.Errorf(
			"rebalance: %s/%s: %w", token0.Denom, token1.Denom, domain.ErrInsufficientBalanceForFees)
	}

	v0, v1, err := valueLegs(b0, b1, refPrice)
	if err != nil {
		return domain.RebalanceResult{}, err
	}

	balanced, err := withinTolerance(v0, v1)
	if err != nil {
		return domain.RebalanceResult{}, err
	}
	if balanced {
		r.logger.Info("pair already balanced",
			"token0", token0.Denom, "token1", token1.Denom,
			"value0", v0.String(), "value1", v1.String())
		return r.conclude(ctx, cycleID, domain.OutcomeBalanced, token0, token1, b0, b1)
	}

	remote0, err := r.registry.Counterpart(token0, r.remoteChain.ID)
	if err != nil {
		return domain.RebalanceResult{}, err
	}
	remote1, err := r.registry.Counterpart(token1, r.remoteChain.ID)
	if err != nil {
		return domain.RebalanceResult{}, err
	}

	// Venue price of token0 in token1 terms, quoted independently of refPrice.
	venuePrice, err := r.venue.GetPrice(ctx, remote0, remote1)
	if err != nil {
		return domain.RebalanceResult{}, fmt.Errorf("rebalance: venue price: %w", err)
	}
	r.warnOnDivergence(refPrice, venuePrice)

	move, err := planMove(v0, v1, refPrice, venuePrice, b0, b1, remote0, remote1)
	if err != nil {
		return domain.RebalanceResult{}, err
	}
	if move == nil {
		return r.conclude(ctx, cycleID, domain.OutcomeBalanced, token0, token1, b0, b1)
	}

	poolCfg, err := r.venue.GetPoolConfigByDenom(ctx, move.outRemote.Denom)
	if err != nil {
		return domain.RebalanceResult{}, fmt.Errorf("rebalance: venue pool config: %w", err)
	}
	minOut, err := poolCfg.MinBaseOut.BigInt()
	if err != nil {
		return domain.RebalanceResult{}, err
	}
	if move.expectedOut.Cmp(minOut) <= 0 {
		r.logger.Info("skipping rebalance below venue minimum",
			"expected_out", move.expectedOut.String(),
			"min_out", minOut.String(),
			"out_denom", move.outRemote.Denom)
		return r.conclude(ctx, cycleID, domain.OutcomeSkipped, token0, token1, b0, b1)
	}

	if err := r.executeMove(ctx, cycleID, move, minOut); err != nil {
		return domain.RebalanceResult{}, err
	}

	// Re-read balances so the sweep and the caller both work from what
	// actually landed, not from the plan. Anything still sitting remote at
	// this point is either pre-existing stray or unspent swap input, and both
	// were counted in the sizing totals, so they must come home too.
	b0, b1, err = r.gatherBalances(ctx, token0, token1)
	if err != nil {
		return domain.RebalanceResult{}, err
	}
	return r.conclude(ctx, cycleID, domain.OutcomeExecuted, token0, token1, b0, b1)
}

// movePlan is one fully sized swap: spend amountIn of the in token on the
// remote venue for an expected expectedOut of the out token.
type movePlan struct {
	in          domain.MultiChainBalance
	inRemote    domain.Token
	outRemote   domain.Token
	amountIn    *big.Int
	expectedOut *big.Int
}

// planMove sizes the swap in human units and converts to base units. Returns
// nil when flooring leaves nothing to move.
func planMove(v0, v1, refPrice, venuePrice *apd.Decimal, b0, b1 domain.MultiChainBalance, remote0, remote1 domain.Token) (*movePlan, error) {
	var (
		amt = new(apd.Decimal)
		out = new(apd.Decimal)
		sum = new(apd.Decimal)
	)
	if _, err := decCtx.Add(sum, refPrice, venuePrice); err != nil {
		return nil, fmt.Errorf("rebalance: plan: %w", err)
	}

	plan := &movePlan{}
	if v0.Cmp(v1) > 0 {
		// token0 is the excess side: a = (v0-v1) / (refPrice + p).
		plan.in, plan.inRemote, plan.outRemote = b0, remote0, remote1
		if _, err := decCtx.Sub(amt, v0, v1); err != nil {
			return nil, err
		}
		if _, err := decCtx.Quo(amt, amt, sum); err != nil {
			return nil, err
		}
		if _, err := decCtx.Mul(out, amt, venuePrice); err != nil {
			return nil, err
		}
	} else {
		// token1 is the excess side: a = (v1-v0) * p / (p + refPrice).
		plan.in, plan.inRemote, plan.outRemote = b1, remote1, remote0
		if _, err := decCtx.Sub(amt, v1, v0); err != nil {
			return nil, err
		}
		if _, err := decCtx.Mul(amt, amt, venuePrice); err != nil {
			return nil, err
		}
		if _, err := decCtx.Quo(amt, amt, sum); err != nil {
			return nil, err
		}
		if _, err := decCtx.Quo(out, amt, venuePrice); err != nil {
			return nil, err
		}
	}

	amountIn, err := toBaseUnits(amt, plan.inRemote)
	if err != nil {
		return nil, err
	}
	expectedOut, err := toBaseUnits(out, plan.outRemote)
	if err != nil {
		return nil, err
	}
	if amountIn.Sign() == 0 {
		return nil, nil
	}
	plan.amountIn, plan.expectedOut = amountIn, expectedOut
	return plan, nil
}

// executeMove runs the bridge/swap/bridge-back sequence for one plan. Each
// on-chain action is written to the ledger immediately after it confirms.
func (r *Rebalancer) executeMove(ctx context.Context, cycleID string, move *movePlan, minOut *big.Int) error {
	remoteAvail, err := move.in.AvailableRemoteBalance.BigInt()
	if err != nil {
		return err
	}
	homeAvail, err := move.in.AvailableHomeBalance.BigInt()
	if err != nil {
		return err
	}

	amountIn := new(big.Int).Set(move.amountIn)
	if shortfall := new(big.Int).Sub(amountIn, remoteAvail); shortfall.Sign() > 0 {
		if shortfall.Cmp(homeAvail) > 0 {
			// Not enough across both chains: move everything we have.
			shortfall.Set(homeAvail)
			amountIn.Add(remoteAvail, homeAvail)
		}
		if shortfall.Sign() > 0 {
			bridged, err := r.bridge.BridgeToken(ctx, domain.BridgeParams{
				FromToken: move.in.Token,
				ToChainID: r.remoteChain.ID,
				Amount:    domain.NewTokenAmount(shortfall, move.in.Token),
			})
			if err != nil {
				return fmt.Errorf("rebalance: bridge %s to %s: %w",
					move.in.Token.Denom, r.remoteChain.ID, err)
			}
			r.record(ctx, cycleID, r.homeChain.ID, bridged.TxHash, domain.TxTypeBridge,
				domain.NewTokenAmount(shortfall, move.in.Token), map[string]any{
					"to_chain_id": r.remoteChain.ID,
					"amount_out":  bridged.AmountOut.Amount,
				})

			out, err := bridged.AmountOut.BigInt()
			if err != nil {
				return err
			}
			// Bridge fees can shave the credited amount; swap what landed.
			if landed := new(big.Int).Add(remoteAvail, out); landed.Cmp(amountIn) < 0 {
				amountIn = landed
			}
		}
	}
	if amountIn.Sign() <= 0 {
		return fmt.Errorf("rebalance: nothing to swap after bridging %s", move.in.Token.Denom)
	}

	swapped, err := r.venue.Swap(ctx, domain.SwapParams{
		TokenIn:   move.inRemote,
		TokenOut:  move.outRemote,
		AmountIn:  domain.NewTokenAmount(amountIn, move.inRemote),
		MinAmount: domain.NewTokenAmount(minOut, move.outRemote),
	})
	if err != nil {
		return fmt.Errorf("rebalance: swap %s for %s: %w", move.inRemote.Denom, move.outRemote.Denom, err)
	}
	r.record(ctx, cycleID, r.remoteChain.ID, swapped.TxHash, domain.TxTypeSwap,
		domain.NewTokenAmount(amountIn, move.inRemote), map[string]any{
			"out_denom":    move.outRemote.Denom,
			"amount_out":   swapped.AmountOut.Amount,
			"expected_out": move.expectedOut.String(),
		})

	// Bring the proceeds home so the deposit can be funded.
	returned, err := r.bridge.BridgeToken(ctx, domain.BridgeParams{
		FromToken: move.outRemote,
		ToChainID: r.homeChain.ID,
		Amount:    swapped.AmountOut,
	})
	if err != nil {
		return fmt.Errorf("rebalance: bridge %s back to %s: %w",
			move.outRemote.Denom, r.homeChain.ID, err)
	}
	r.record(ctx, cycleID, r.remoteChain.ID, returned.TxHash, domain.TxTypeBridge,
		swapped.AmountOut, map[string]any{
			"to_chain_id": r.homeChain.ID,
			"amount_out":  returned.AmountOut.Amount,
		})

	return nil
}

// conclude finishes an invocation on every outcome: any leftover remote
// balances are swept home, and the result reflects what is spendable on the
// home chain afterwards.
func (r *Rebalancer) conclude(ctx context.Context, cycleID string, outcome domain.RebalanceOutcome, token0, token1 domain.Token, b0, b1 domain.MultiChainBalance) (domain.RebalanceResult, error) {
	swept, err := r.sweepRemote(ctx, cycleID, b0, b1)
	if err != nil {
		return domain.RebalanceResult{}, err
	}
	if swept {
		b0, b1, err = r.gatherBalances(ctx, token0, token1)
		if err != nil {
			return domain.RebalanceResult{}, err
		}
	}
	return domain.RebalanceResult{
		Outcome:  outcome,
		Balance0: b0.AvailableHomeBalance,
		Balance1: b1.AvailableHomeBalance,
	}, nil
}

// sweepRemote bridges any spendable remote balance of the pair back home.
// Strays accumulate when a previous run died between a swap and its
// bridge-back.
func (r *Rebalancer) sweepRemote(ctx context.Context, cycleID string, balances ...domain.MultiChainBalance) (bool, error) {
	swept := false
	for _, b := range balances {
		if b.AvailableRemoteBalance.IsZero() {
			continue
		}
		res, err := r.bridge.BridgeToken(ctx, domain.BridgeParams{
			FromToken: b.RemoteBalance.Token,
			ToChainID: r.homeChain.ID,
			Amount:    b.AvailableRemoteBalance,
		})
		if err != nil {
			return swept, fmt.Errorf("rebalance: sweep %s home: %w", b.RemoteBalance.Token.Denom, err)
		}
		r.record(ctx, cycleID, r.remoteChain.ID, res.TxHash, domain.TxTypeSweepRemoteBalance,
			b.AvailableRemoteBalance, map[string]any{
				"to_chain_id": r.homeChain.ID,
				"amount_out":  res.AmountOut.Amount,
			})
		r.logger.Info("swept stray remote balance home",
			"denom", b.RemoteBalance.Token.Denom,
			"amount", b.AvailableRemoteBalance.Amount)
		swept = true
	}
	return swept, nil
}

// record writes one ledger entry. The funds have already moved by the time
// this runs, so a ledger failure is logged rather than aborting the sequence.
func (r *Rebalancer) record(ctx context.Context, cycleID, chainID, txHash string, typ domain.TransactionType, amt domain.TokenAmount, details map[string]any) {
	rec := domain.TransactionRecord{
		ID:        uuid.NewString(),
		CycleID:   cycleID,
		ChainID:   chainID,
		TxHash:    txHash,
		Type:      typ,
		Denom:     amt.Token.Denom,
		Amount:    amt.Amount,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.ledger.AddTransaction(ctx, rec); err != nil {
		r.logger.Error("ledger write failed",
			"type", string(typ), "tx_hash", txHash, "error", err)
	}
}

func (r *Rebalancer) warnOnDivergence(refPrice, venuePrice *apd.Decimal) {
	diff := new(apd.Decimal)
	if _, err := decCtx.Sub(diff, refPrice, venuePrice); err != nil {
		return
	}
	diff.Abs(diff)
	rel := new(apd.Decimal)
	if _, err := decCtx.Quo(rel, diff, refPrice); err != nil {
		return
	}
	if rel.Cmp(r.divergenceWarn) > 0 {
		r.logger.Warn("reference and venue prices diverge",
			"ref_price", refPrice.String(),
			"venue_price", venuePrice.String(),
			"relative_gap", rel.String())
	}
}

// valueLegs expresses both totals in token1 terms at refPrice.
func valueLegs(b0, b1 domain.MultiChainBalance, refPrice *apd.Decimal) (v0, v1 *apd.Decimal, err error) {
	h0, err := toHuman(b0.TotalAvailableBalance)
	if err != nil {
		return nil, nil, err
	}
	h1, err := toHuman(b1.TotalAvailableBalance)
	if err != nil {
		return nil, nil, err
	}
	v0 = new(apd.Decimal)
	if _, err := decCtx.Mul(v0, h0, refPrice); err != nil {
		return nil, nil, fmt.Errorf("rebalance: value legs: %w", err)
	}
	return v0, h1, nil
}

// withinTolerance reports |v0-v1| / (v0+v1) < tolerance.
func withinTolerance(v0, v1 *apd.Decimal) (bool, error) {
	sum := new(apd.Decimal)
	if _, err := decCtx.Add(sum, v0, v1); err != nil {
		return false, err
	}
	if sum.Sign() <= 0 {
		return true, nil
	}
	diff := new(apd.Decimal)
	if _, err := decCtx.Sub(diff, v0, v1); err != nil {
		return false, err
	}
	diff.Abs(diff)
	rel := new(apd.Decimal)
	if _, err := decCtx.Quo(rel, diff, sum); err != nil {
		return false, err
	}
	return rel.Cmp(tolerance) < 0, nil
}
