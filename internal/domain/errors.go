package domain

import "errors"

var (
	// ErrInvalidThreshold is returned when a rebalance threshold is outside
	// the open interval (50, 100). A 50% threshold would trigger on every
	// evaluation and a 100% threshold never would.
	ErrInvalidThreshold = errors.New("rebalance threshold must be strictly between 50 and 100")

	// ErrTickOutOfRange is returned for ticks or prices outside the valid
	// tick domain.
	ErrTickOutOfRange = errors.New("tick out of range")

	// ErrTokenNotFound is returned when a denom has no entry in the token
	// registry.
	ErrTokenNotFound = errors.New("token not found in registry")

	// ErrInsufficientBalanceForFees is returned when no chain holds enough of
	// its native gas token to cover the fee reserve.
	ErrInsufficientBalanceForFees = errors.New("insufficient balance to cover fee reserve")

	// ErrMinimumOutputNotMet marks a swap whose expected output is at or
	// below the venue minimum. Non-fatal: the rebalance step is skipped.
	ErrMinimumOutputNotMet = errors.New("expected swap output below venue minimum")

	// ErrPositionNotFound is returned when a position id no longer exists on
	// chain. Non-fatal: the orchestrator clears the id and recreates.
	ErrPositionNotFound = errors.New("position not found")

	// ErrNotFound is the generic missing-record error used by stores and
	// caches.
	ErrNotFound = errors.New("not found")

	// ErrMissingConfig is returned at startup for configuration with
	// required fields absent.
	ErrMissingConfig = errors.New("missing required configuration")
)
