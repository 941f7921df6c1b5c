package rebalance

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/require"

	"github.com/CryptoChem0000/clrebalancer/internal/domain"
	"github.com/CryptoChem0000/clrebalancer/internal/registry"
)

type fakeAccount struct {
	chainID  string
	balances map[string]*big.Int
	tokens   map[string]domain.Token
}

func newFakeAccount(chainID string) *fakeAccount {
	return &fakeAccount{
		chainID:  chainID,
		balances: map[string]*big.Int{},
		tokens:   map[string]domain.Token{},
	}
}

func (a *fakeAccount) set(token domain.Token, amount int64) {
	a.balances[token.Denom] = big.NewInt(amount)
	a.tokens[token.Denom] = token
}

func (a *fakeAccount) credit(token domain.Token, amount *big.Int) {
	cur, ok := a.balances[token.Denom]
	if !ok {
		cur = big.NewInt(0)
	}
	a.balances[token.Denom] = new(big.Int).Add(cur, amount)
	a.tokens[token.Denom] = token
}

func (a *fakeAccount) debit(denom string, amount *big.Int) error {
	cur, ok := a.balances[denom]
	if !ok || cur.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient %s on %s", denom, a.chainID)
	}
	a.balances[denom] = new(big.Int).Sub(cur, amount)
	return nil
}

func (a *fakeAccount) ChainID() string { return a.chainID }

func (a *fakeAccount) GetAvailableBalances(context.Context) (map[string]domain.TokenAmount, error) {
	out := make(map[string]domain.TokenAmount, len(a.balances))
	for denom, n := range a.balances {
		out[denom] = domain.NewTokenAmount(n, a.tokens[denom])
	}
	return out, nil
}

func (a *fakeAccount) GetTokenAvailableBalance(_ context.Context, denom string) (domain.TokenAmount, error) {
	n, ok := a.balances[denom]
	if !ok {
		return domain.TokenAmount{Amount: "0", Token: a.tokens[denom]}, nil
	}
	return domain.NewTokenAmount(n, a.tokens[denom]), nil
}

type fakeBridge struct {
	accounts map[string]*fakeAccount
	reg      *registry.Registry
	calls    []domain.BridgeParams
}

func (b *fakeBridge) BridgeToken(_ context.Context, p domain.BridgeParams) (domain.BridgeResult, error) {
	from, ok := b.accounts[p.FromToken.ChainID]
	if !ok {
		return domain.BridgeResult{}, fmt.Errorf("unknown chain %s", p.FromToken.ChainID)
	}
	to, ok := b.accounts[p.ToChainID]
	if !ok {
		return domain.BridgeResult{}, fmt.Errorf("unknown chain %s", p.ToChainID)
	}
	dest, err := b.reg.Counterpart(p.FromToken, p.ToChainID)
	if err != nil {
		return domain.BridgeResult{}, err
	}
	amt, err := p.Amount.BigInt()
	if err != nil {
		return domain.BridgeResult{}, err
	}
	if err := from.debit(p.FromToken.Denom, amt); err != nil {
		return domain.BridgeResult{}, err
	}
	to.credit(dest, amt)

	b.calls = append(b.calls, p)
	return domain.BridgeResult{
		TxHash:           fmt.Sprintf("bridge-%d", len(b.calls)),
		ChainID:          p.FromToken.ChainID,
		DestinationToken: dest,
		AmountOut:        domain.NewTokenAmount(amt, dest),
	}, nil
}

// fakeVenue fills swaps exactly at its quoted price of token0 in token1 terms.
type fakeVenue struct {
	remote     *fakeAccount
	price      *apd.Decimal
	token0     domain.Token // remote representation
	minBaseOut map[string]int64
	swaps      []domain.SwapParams
}

func (v *fakeVenue) GetPrice(_ context.Context, assetIn, assetOut domain.Token) (*apd.Decimal, error) {
	return new(apd.Decimal).Set(v.price), nil
}

func (v *fakeVenue) GetPoolConfigByDenom(_ context.Context, denom string) (domain.VenuePoolConfig, error) {
	token := v.remote.tokens[denom]
	token.Denom = denom
	return domain.VenuePoolConfig{
		PoolAddress: "pool-" + denom,
		MinBaseOut:  domain.NewTokenAmount(big.NewInt(v.minBaseOut[denom]), token),
	}, nil
}

func (v *fakeVenue) Swap(_ context.Context, p domain.SwapParams) (domain.SwapResult, error) {
	in, err := toHuman(p.AmountIn)
	if err != nil {
		return domain.SwapResult{}, err
	}
	out := new(apd.Decimal)
	if p.TokenIn.Denom == v.token0.Denom {
		if _, err := decCtx.Mul(out, in, v.price); err != nil {
			return domain.SwapResult{}, err
		}
	} else {
		if _, err := decCtx.Quo(out, in, v.price); err != nil {
			return domain.SwapResult{}, err
		}
	}
	outBase, err := toBaseUnits(out, p.TokenOut)
	if err != nil {
		return domain.SwapResult{}, err
	}

	amtIn, err := p.AmountIn.BigInt()
	if err != nil {
		return domain.SwapResult{}, err
	}
	if err := v.remote.debit(p.TokenIn.Denom, amtIn); err != nil {
		return domain.SwapResult{}, err
	}
	v.remote.credit(p.TokenOut, outBase)

	v.swaps = append(v.swaps, p)
	return domain.SwapResult{
		TxHash:    fmt.Sprintf("swap-%d", len(v.swaps)),
		ChainID:   v.remote.chainID,
		AmountOut: domain.NewTokenAmount(outBase, p.TokenOut),
	}, nil
}

type fakeLedger struct {
	records []domain.TransactionRecord
}

func (l *fakeLedger) AddTransaction(_ context.Context, rec domain.TransactionRecord) error {
	l.records = append(l.records, rec)
	return nil
}

func (l *fakeLedger) AddTransactionBatch(_ context.Context, recs []domain.TransactionRecord) error {
	l.records = append(l.records, recs...)
	return nil
}

type rig struct {
	reb    *Rebalancer
	home   *fakeAccount
	remote *fakeAccount
	bridge *fakeBridge
	venue  *fakeVenue
	ledger *fakeLedger

	atomHome   domain.Token
	atomRemote domain.Token
	usdcHome   domain.Token
	usdcRemote domain.Token
}

func newRig(t *testing.T, venuePrice string, homeReserve string) *rig {
	t.Helper()

	homeChain := domain.ChainInfo{ID: "alpha-1", Name: "alpha", NativeDenom: "uatom"}
	remoteChain := domain.ChainInfo{ID: "beta-1", Name: "beta", NativeDenom: "ubeta"}

	r := &rig{
		atomHome:   domain.Token{ChainID: "alpha-1", Denom: "uatom", Decimals: 6, Name: "ATOM"},
		atomRemote: domain.Token{ChainID: "beta-1", Denom: "ibc/ATOM", Decimals: 6, Name: "ATOM", OriginDenom: "uatom", OriginChainID: "alpha-1"},
		usdcHome:   domain.Token{ChainID: "alpha-1", Denom: "ibc/USDC", Decimals: 6, Name: "USDC", OriginDenom: "uusdc", OriginChainID: "noble-1"},
		usdcRemote: domain.Token{ChainID: "beta-1", Denom: "uusdc", Decimals: 6, Name: "USDC", OriginDenom: "uusdc", OriginChainID: "noble-1"},
	}
	reg := registry.New([]domain.Token{r.atomHome, r.atomRemote, r.usdcHome, r.usdcRemote})

	r.home = newFakeAccount("alpha-1")
	r.remote = newFakeAccount("beta-1")
	r.bridge = &fakeBridge{
		accounts: map[string]*fakeAccount{"alpha-1": r.home, "beta-1": r.remote},
		reg:      reg,
	}
	price, _, err := apd.NewFromString(venuePrice)
	require.NoError(t, err)
	r.venue = &fakeVenue{
		remote:     r.remote,
		price:      price,
		token0:     r.atomRemote,
		minBaseOut: map[string]int64{},
	}
	r.ledger = &fakeLedger{}

	reb, err := New(Config{
		HomeChain:      homeChain,
		RemoteChain:    remoteChain,
		HomeAccount:    r.home,
		RemoteAccount:  r.remote,
		Bridge:         r.bridge,
		Venue:          r.venue,
		Ledger:         r.ledger,
		Registry:       reg,
		HomeFeeReserve: homeReserve,
	})
	require.NoError(t, err)
	r.reb = reb
	return r
}

func refPrice(t *testing.T, s string) *apd.Decimal {
	t.Helper()
	d, _, err := apd.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestRebalance_ConvergesToEqualValue(t *testing.T) {
	r := newRig(t, "2", "0")
	r.home.set(r.atomHome, 1_000_000_000) // 1000 ATOM, nothing else anywhere
	r.home.set(r.usdcHome, 0)

	res, err := r.reb.Rebalance(context.Background(), "cycle-1", r.atomHome, r.usdcHome, refPrice(t, "2"))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeExecuted, res.Outcome)

	// v0 = 2000 USDC, target 1000 each side: move 500 ATOM through the venue.
	require.Equal(t, "500000000", res.Balance0.Amount)
	require.Equal(t, "1000000000", res.Balance1.Amount)

	// Bridge out, swap, bridge back, each with a ledger entry.
	require.Len(t, r.bridge.calls, 2)
	require.Len(t, r.venue.swaps, 1)
	require.Len(t, r.ledger.records, 3)
	require.Equal(t, domain.TxTypeBridge, r.ledger.records[0].Type)
	require.Equal(t, domain.TxTypeSwap, r.ledger.records[1].Type)
	require.Equal(t, domain.TxTypeBridge, r.ledger.records[2].Type)
	require.Equal(t, "cycle-1", r.ledger.records[0].CycleID)

	// Nothing stranded on the remote chain.
	require.Equal(t, "0", r.remote.balances["ibc/ATOM"].String())
	require.Equal(t, "0", r.remote.balances["uusdc"].String())
}

func TestRebalance_AlreadyBalancedIsNoOp(t *testing.T) {
	r := newRig(t, "2", "0")
	r.home.set(r.atomHome, 500_000_000)   // 500 ATOM * 2 = 1000 USDC of value
	r.home.set(r.usdcHome, 1_000_000_000) // 1000 USDC

	res, err := r.reb.Rebalance(context.Background(), "cycle-2", r.atomHome, r.usdcHome, refPrice(t, "2"))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeBalanced, res.Outcome)
	require.Equal(t, "500000000", res.Balance0.Amount)
	require.Equal(t, "1000000000", res.Balance1.Amount)

	require.Empty(t, r.bridge.calls)
	require.Empty(t, r.venue.swaps)
	require.Empty(t, r.ledger.records)
}

func TestRebalance_WithinToleranceIsBalanced(t *testing.T) {
	r := newRig(t, "2", "0")
	// v0 = 1001, v1 = 1000: relative imbalance 1/2001, well under 0.1%.
	r.home.set(r.atomHome, 500_500_000)
	r.home.set(r.usdcHome, 1_000_000_000)

	res, err := r.reb.Rebalance(context.Background(), "cycle-3", r.atomHome, r.usdcHome, refPrice(t, "2"))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeBalanced, res.Outcome)
	require.Empty(t, r.venue.swaps)
}

func TestRebalance_SkipsBelowVenueMinimum(t *testing.T) {
	r := newRig(t, "2", "0")
	// v0 = 1020, v1 = 1000: move 5 ATOM, expect 10 USDC out.
	r.home.set(r.atomHome, 510_000_000)
	r.home.set(r.usdcHome, 1_000_000_000)
	r.venue.minBaseOut["uusdc"] = 20_000_000 // venue floor above expected out

	res, err := r.reb.Rebalance(context.Background(), "cycle-4", r.atomHome, r.usdcHome, refPrice(t, "2"))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeSkipped, res.Outcome)

	// Balances returned unchanged, nothing moved.
	require.Equal(t, "510000000", res.Balance0.Amount)
	require.Equal(t, "1000000000", res.Balance1.Amount)
	require.Empty(t, r.bridge.calls)
	require.Empty(t, r.venue.swaps)
}

func TestRebalance_FeeReserveExhaustion(t *testing.T) {
	// Token0 is the home gas token and the whole balance sits under the
	// reserve, with nothing anywhere else.
	r := newRig(t, "2", "500000")
	r.home.set(r.atomHome, 400_000)
	r.home.set(r.usdcHome, 0)

	_, err := r.reb.Rebalance(context.Background(), "cycle-5", r.atomHome, r.usdcHome, refPrice(t, "2"))
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrInsufficientBalanceForFees))
	require.Empty(t, r.bridge.calls)
}

func TestRebalance_FeeReserveHeldBack(t *testing.T) {
	r := newRig(t, "2", "100000000") // hold back 100 ATOM of gas
	r.home.set(r.atomHome, 1_100_000_000)
	r.home.set(r.usdcHome, 0)

	res, err := r.reb.Rebalance(context.Background(), "cycle-6", r.atomHome, r.usdcHome, refPrice(t, "2"))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeExecuted, res.Outcome)

	// Only the 1000 ATOM above the reserve participates: 500 moves, and the
	// reserve stays in the wallet on top of the available half.
	require.Equal(t, "500000000", res.Balance0.Amount)
	require.Equal(t, "1000000000", res.Balance1.Amount)
	require.Equal(t, "600000000", r.home.balances["uatom"].String())
}

func TestRebalance_SweepsStrayRemoteBalance(t *testing.T) {
	r := newRig(t, "2", "0")
	// Balanced pair at home, but 50 USDC stranded on the remote chain from an
	// interrupted earlier run.
	r.home.set(r.atomHome, 500_000_000)
	r.home.set(r.usdcHome, 900_000_000)
	r.remote.set(r.usdcRemote, 100_000_000)

	res, err := r.reb.Rebalance(context.Background(), "cycle-7", r.atomHome, r.usdcHome, refPrice(t, "2"))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeBalanced, res.Outcome)

	// The stray came home and shows up in the result.
	require.Equal(t, "1000000000", res.Balance1.Amount)
	require.Equal(t, "0", r.remote.balances["uusdc"].String())
	require.Len(t, r.ledger.records, 1)
	require.Equal(t, domain.TxTypeSweepRemoteBalance, r.ledger.records[0].Type)
}

func TestRebalance_UsesRemoteFundsFirst(t *testing.T) {
	r := newRig(t, "2", "0")
	// The excess ATOM already sits on the remote chain: no outbound bridge is
	// needed, only swap, bridge-back and the sweep of the unspent remainder.
	r.home.set(r.atomHome, 400_000_000)
	r.home.set(r.usdcHome, 0)
	r.remote.set(r.atomRemote, 600_000_000)

	res, err := r.reb.Rebalance(context.Background(), "cycle-8", r.atomHome, r.usdcHome, refPrice(t, "2"))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeExecuted, res.Outcome)

	require.Len(t, r.venue.swaps, 1)
	// Two inbound bridges: the swap output and the 100 unspent remote ATOM.
	require.Len(t, r.bridge.calls, 2)
	require.Equal(t, "beta-1", r.bridge.calls[0].FromToken.ChainID)
	require.Equal(t, "beta-1", r.bridge.calls[1].FromToken.ChainID)
	require.Equal(t, "500000000", res.Balance0.Amount)
	require.Equal(t, "1000000000", res.Balance1.Amount)
	require.Equal(t, "0", r.remote.balances["ibc/ATOM"].String())
}

func TestRebalance_ExecutedMoveSweepsStrayRemote(t *testing.T) {
	r := newRig(t, "2", "0")
	// 1000 ATOM excess at home plus 100 USDC stranded remote from an
	// interrupted earlier run. The stray counts toward the sizing totals, so
	// the executed move must bring it home before the deposit is funded.
	r.home.set(r.atomHome, 1_000_000_000)
	r.home.set(r.usdcHome, 0)
	r.remote.set(r.usdcRemote, 100_000_000)

	res, err := r.reb.Rebalance(context.Background(), "cycle-9", r.atomHome, r.usdcHome, refPrice(t, "2"))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeExecuted, res.Outcome)

	// v0 = 2000, v1 = 100: move 475 ATOM through the venue for 950 USDC, then
	// the 100 stray USDC joins it at home for an even 1050/1050 split.
	require.Equal(t, "525000000", res.Balance0.Amount)
	require.Equal(t, "1050000000", res.Balance1.Amount)
	require.Equal(t, "0", r.remote.balances["uusdc"].String())
	require.Equal(t, "0", r.remote.balances["ibc/ATOM"].String())

	// Bridge out, swap, bridge back, sweep.
	require.Len(t, r.ledger.records, 4)
	require.Equal(t, domain.TxTypeSweepRemoteBalance, r.ledger.records[3].Type)
}
