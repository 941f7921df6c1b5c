package domain

import (
	"context"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// Signer produces signatures and an address for one wallet. Key storage and
// signature schemes live entirely behind this interface; the rebalancer only
// ever needs the address and opaque signed bytes.
type Signer interface {
	Address() string
	Sign(ctx context.Context, payload []byte) ([]byte, error)
}

// ChainAccount reads the wallet's spendable balances on one chain.
type ChainAccount interface {
	ChainID() string
	GetAvailableBalances(ctx context.Context) (map[string]TokenAmount, error)
	GetTokenAvailableBalance(ctx context.Context, denom string) (TokenAmount, error)
}

// PoolClient reads and mutates concentrated-liquidity pool state on the home
// chain. All writes sign with the wallet's single account and therefore must
// never be issued concurrently.
type PoolClient interface {
	GetPoolInfo(ctx context.Context, poolID uint64) (Pool, error)
	GetPositionInfo(ctx context.Context, positionID uint64) (Position, error)
	GetPositions(ctx context.Context) ([]Position, error)
	CreatePosition(ctx context.Context, params CreatePositionParams) (CreatePositionResult, error)
	WithdrawPosition(ctx context.Context, params WithdrawPositionParams) (WithdrawPositionResult, error)
}

// BridgeClient moves a token's value between chains. Bridging is eventually
// consistent: BridgeToken returns once the transfer has settled on the
// destination chain or fails with a route/gas/timeout error.
type BridgeClient interface {
	BridgeToken(ctx context.Context, params BridgeParams) (BridgeResult, error)
}

// SwapClient executes swaps on the second venue, which generally is not the
// position's own pool and quotes its own independent price.
type SwapClient interface {
	GetPrice(ctx context.Context, assetIn, assetOut Token) (*apd.Decimal, error)
	GetPoolConfigByDenom(ctx context.Context, denom string) (VenuePoolConfig, error)
	Swap(ctx context.Context, params SwapParams) (SwapResult, error)
}

// PriceCache is a short-lived cache for venue prices, fed by the websocket
// ticker stream and consulted before REST lookups.
type PriceCache interface {
	SetPrice(ctx context.Context, pair string, price string, ts time.Time) error
	GetPrice(ctx context.Context, pair string) (string, time.Time, error)
}
