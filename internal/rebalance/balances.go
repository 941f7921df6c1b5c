package rebalance

import (
	"context"
	"fmt"
	"math/big"

	"github.com/cockroachdb/apd/v3"
	"golang.org/x/sync/errgroup"

	"github.com/CryptoChem0000/clrebalancer/internal/domain"
)

// decCtx is the decimal context for rebalance arithmetic. floorCtx is the
// same context with floor rounding, used when converting decimals back to
// base-unit integers so we never move more than we computed.
var (
	decCtx   = apd.BaseContext.WithPrecision(50)
	floorCtx = func() *apd.Context {
		c := apd.BaseContext.WithPrecision(50)
		c.Rounding = apd.RoundFloor
		return c
	}()
)

// gatherBalances reads the wallet's balances on both chains concurrently (the
// reads go to independent chains and precede any spend decision) and builds
// the per-token multi-chain view with fee reserves applied.
func (r *Rebalancer) gatherBalances(ctx context.Context, token0, token1 domain.Token) (domain.MultiChainBalance, domain.MultiChainBalance, error) {
	var homeBals, remoteBals map[string]domain.TokenAmount

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		homeBals, err = r.homeAccount.GetAvailableBalances(gctx)
		if err != nil {
			return fmt.Errorf("rebalance: home balances: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		remoteBals, err = r.remoteAccount.GetAvailableBalances(gctx)
		if err != nil {
			return fmt.Errorf("rebalance: remote balances: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.MultiChainBalance{}, domain.MultiChainBalance{}, err
	}

	b0, err := r.balanceFor(token0, homeBals, remoteBals)
	if err != nil {
		return domain.MultiChainBalance{}, domain.MultiChainBalance{}, err
	}
	b1, err := r.balanceFor(token1, homeBals, remoteBals)
	if err != nil {
		return domain.MultiChainBalance{}, domain.MultiChainBalance{}, err
	}
	return b0, b1, nil
}

func (r *Rebalancer) balanceFor(token domain.Token, homeBals, remoteBals map[string]domain.TokenAmount) (domain.MultiChainBalance, error) {
	remoteToken, err := r.registry.Counterpart(token, r.remoteChain.ID)
	if err != nil {
		return domain.MultiChainBalance{}, err
	}

	home := homeBals[token.Denom]
	if home.Amount == "" {
		home = domain.ZeroAmount(token)
	}
	home.Token = token
	remote := remoteBals[remoteToken.Denom]
	if remote.Amount == "" {
		remote = domain.ZeroAmount(remoteToken)
	}
	remote.Token = remoteToken

	availHome, err := applyReserve(home, r.homeChain.NativeDenom, r.homeReserve)
	if err != nil {
		return domain.MultiChainBalance{}, err
	}
	availRemote, err := applyReserve(remote, r.remoteChain.NativeDenom, r.remoteReserve)
	if err != nil {
		return domain.MultiChainBalance{}, err
	}

	ah, err := availHome.BigInt()
	if err != nil {
		return domain.MultiChainBalance{}, err
	}
	ar, err := availRemote.BigInt()
	if err != nil {
		return domain.MultiChainBalance{}, err
	}

	return domain.MultiChainBalance{
		Token:                  token,
		HomeBalance:            home,
		RemoteBalance:          remote,
		AvailableHomeBalance:   availHome,
		AvailableRemoteBalance: availRemote,
		TotalAvailableBalance:  domain.NewTokenAmount(new(big.Int).Add(ah, ar), token),
	}, nil
}

// applyReserve subtracts the chain's fee reserve when the balance is held in
// that chain's native gas token, clamping at zero. Only the remainder is ever
// eligible to move.
func applyReserve(balance domain.TokenAmount, nativeDenom string, reserve *big.Int) (domain.TokenAmount, error) {
	if balance.Token.Denom != nativeDenom || reserve == nil || reserve.Sign() == 0 {
		return balance, nil
	}
	n, err := balance.BigInt()
	if err != nil {
		return domain.TokenAmount{}, err
	}
	return domain.NewTokenAmount(new(big.Int).Sub(n, reserve), balance.Token), nil
}

// toHuman converts a base-unit amount to a human-unit decimal by shifting the
// exponent by the token's decimals.
func toHuman(a domain.TokenAmount) (*apd.Decimal, error) {
	d, err := a.Decimal()
	if err != nil {
		return nil, err
	}
	d.Exponent -= int32(a.Token.Decimals)
	return d, nil
}

// toBaseUnits converts a human-unit decimal into base units, flooring so the
// result never exceeds the input.
func toBaseUnits(d *apd.Decimal, token domain.Token) (*big.Int, error) {
	shifted := new(apd.Decimal).Set(d)
	shifted.Exponent += int32(token.Decimals)

	intVal := new(apd.Decimal)
	if _, err := floorCtx.Quantize(intVal, shifted, 0); err != nil {
		return nil, fmt.Errorf("rebalance: quantize %s: %w", d, err)
	}
	n, ok := new(big.Int).SetString(intVal.Text('f'), 10)
	if !ok {
		return nil, fmt.Errorf("rebalance: non-integer quantize result %s", intVal)
	}
	if n.Sign() < 0 {
		n.SetInt64(0)
	}
	return n, nil
}
