package domain

// MultiChainBalance is the view of one logical token held across the home
// chain and the remote chain, computed fresh per rebalance call. Available
// balances have the per-chain fee reserve already subtracted when the token is
// that chain's native gas token.
type MultiChainBalance struct {
	Token                  Token
	HomeBalance            TokenAmount
	RemoteBalance          TokenAmount
	AvailableHomeBalance   TokenAmount
	AvailableRemoteBalance TokenAmount
	TotalAvailableBalance  TokenAmount
}

// BridgeParams are the inputs to BridgeClient.BridgeToken.
type BridgeParams struct {
	FromToken Token
	ToChainID string
	Amount    TokenAmount
}

// BridgeResult is the outcome of a bridge transfer. Once the broadcast
// succeeds the transfer is never retried; broadcast success is the commit
// point.
type BridgeResult struct {
	TxHash             string
	ChainID            string
	DestinationToken   Token
	DestinationAddress string
	AmountOut          TokenAmount
}

// SwapParams are the inputs to SwapClient.Swap.
type SwapParams struct {
	TokenIn   Token
	TokenOut  Token
	AmountIn  TokenAmount
	MinAmount TokenAmount
}

// SwapResult is the outcome of a swap on the remote venue.
type SwapResult struct {
	TxHash    string
	ChainID   string
	AmountOut TokenAmount
}

// VenuePoolConfig describes the swap venue's constraints for a pair.
type VenuePoolConfig struct {
	PoolAddress string
	MinBaseOut  TokenAmount
}

// RebalanceOutcome classifies what a rebalance invocation did. A skipped
// rebalance (already balanced, or swap below the venue minimum) is not an
// error; the caller proceeds with the balances it has.
type RebalanceOutcome int

const (
	// OutcomeBalanced means the pair was already within tolerance of the
	// target split and nothing was moved.
	OutcomeBalanced RebalanceOutcome = iota
	// OutcomeSkipped means a move was computed but not executed because the
	// expected output was at or below the venue minimum.
	OutcomeSkipped
	// OutcomeExecuted means at least one bridge or swap was performed.
	OutcomeExecuted
)

func (o RebalanceOutcome) String() string {
	switch o {
	case OutcomeBalanced:
		return "balanced"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeExecuted:
		return "executed"
	default:
		return "unknown"
	}
}

// RebalanceResult is the final state after a rebalance invocation: the
// outcome classification and the post-rebalance home-chain balances of the
// pair.
type RebalanceResult struct {
	Outcome  RebalanceOutcome
	Balance0 TokenAmount
	Balance1 TokenAmount
}

// RunAction names what an orchestration run did.
type RunAction string

const (
	ActionNone       RunAction = "none"
	ActionCreated    RunAction = "created"
	ActionRebalanced RunAction = "rebalanced"
	ActionError      RunAction = "error"
)

// RunResult summarizes one orchestration run for the caller (one-shot exit
// code, watch-mode logging, notifications).
type RunResult struct {
	Action     RunAction
	PositionID uint64
	Status     RangeStatus
	Error      string
}
