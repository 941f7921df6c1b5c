package domain

import "github.com/cockroachdb/apd/v3"

// Pool is the current state of a concentrated-liquidity pool as read from
// chain. Token0/Token1 order is canonical (denom-sorted) and must not be
// swapped by callers.
type Pool struct {
	ID           uint64
	Token0       Token
	Token1       Token
	TickSpacing  int64
	CurrentTick  int64
	CurrentPrice *apd.Decimal
}

// Position is one open concentrated-liquidity position owned by the wallet.
type Position struct {
	PositionID uint64
	PoolID     uint64
	LowerTick  int64
	UpperTick  int64
	Liquidity  string
}

// CreatePositionParams are the inputs to PoolClient.CreatePosition.
type CreatePositionParams struct {
	PoolID    uint64
	LowerTick int64
	UpperTick int64
	Amount0   TokenAmount
	Amount1   TokenAmount
}

// CreatePositionResult reports the outcome of a position creation.
type CreatePositionResult struct {
	PositionID uint64
	Amount0    TokenAmount
	Amount1    TokenAmount
	TxHash     string
	GasFees    []TokenAmount
}

// WithdrawPositionParams are the inputs to PoolClient.WithdrawPosition.
// Liquidity empty means withdraw the full position.
type WithdrawPositionParams struct {
	PositionID uint64
	Liquidity  string
}

// WithdrawPositionResult reports the outcome of a withdrawal, including any
// spread/incentive rewards collected alongside the principal.
type WithdrawPositionResult struct {
	Amount0 TokenAmount
	Amount1 TokenAmount
	Rewards []TokenAmount
	TxHash  string
	GasFees []TokenAmount
}

// RangeStatus is the result of evaluating a position against the pool's
// current price. PercentageBalance is 0 when the price sits at (or below) the
// lower tick and 100 at (or above) the upper tick.
type RangeStatus struct {
	IsInRange         bool
	PercentageBalance float64
	CurrentTick       int64
}
