// Package position evaluates a concentrated-liquidity position against the
// pool's current price and decides whether it needs rebalancing.
package position

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"github.com/CryptoChem0000/clrebalancer/internal/domain"
	"github.com/CryptoChem0000/clrebalancer/internal/ticks"
)

// Evaluate computes where the current price sits inside a position's tick
// range and whether the position counts as in range under the configured
// threshold.
//
// The percentage balance is 0 when the price is at or below the lower tick
// and 100 at or above the upper tick. The in-range check is symmetric: the
// position is in range only while the balance lies strictly between
// (100 - threshold) and threshold, so drifting toward either edge by more
// than (100 - threshold) percentage points triggers a rebalance even while
// the price is technically still inside [lower, upper].
//
// thresholdPercent must lie in the open interval (50, 100): at 50 every
// position would always trigger, at 100 none ever would.
func Evaluate(currentPrice *apd.Decimal, tickSpacing int64, pos domain.Position, thresholdPercent float64) (domain.RangeStatus, error) {
	if thresholdPercent <= 50 || thresholdPercent >= 100 {
		return domain.RangeStatus{}, fmt.Errorf("%w: got %v", domain.ErrInvalidThreshold, thresholdPercent)
	}
	if pos.UpperTick <= pos.LowerTick {
		return domain.RangeStatus{}, fmt.Errorf("position: invalid tick range [%d, %d]", pos.LowerTick, pos.UpperTick)
	}

	currentTick, err := ticks.PriceToRoundedTick(currentPrice, tickSpacing)
	if err != nil {
		return domain.RangeStatus{}, fmt.Errorf("position: evaluate range: %w", err)
	}
	return evaluateTick(currentTick, pos, thresholdPercent), nil
}

// EvaluateTick is Evaluate for callers that already hold the pool's current
// tick. The tick is floored to the pool's spacing before comparison.
func EvaluateTick(currentTick, tickSpacing int64, pos domain.Position, thresholdPercent float64) (domain.RangeStatus, error) {
	if thresholdPercent <= 50 || thresholdPercent >= 100 {
		return domain.RangeStatus{}, fmt.Errorf("%w: got %v", domain.ErrInvalidThreshold, thresholdPercent)
	}
	if pos.UpperTick <= pos.LowerTick {
		return domain.RangeStatus{}, fmt.Errorf("position: invalid tick range [%d, %d]", pos.LowerTick, pos.UpperTick)
	}
	return evaluateTick(ticks.RoundToTickSpacing(currentTick, tickSpacing), pos, thresholdPercent), nil
}

func evaluateTick(currentTick int64, pos domain.Position, thresholdPercent float64) domain.RangeStatus {
	status := domain.RangeStatus{CurrentTick: currentTick}

	switch {
	case currentTick < pos.LowerTick:
		// Fully below the range: the position is entirely in token0.
		status.PercentageBalance = 0
		return status
	case currentTick > pos.UpperTick:
		status.PercentageBalance = 100
		return status
	}

	status.PercentageBalance = 100 * float64(currentTick-pos.LowerTick) / float64(pos.UpperTick-pos.LowerTick)
	lowerBound := 100 - thresholdPercent
	status.IsInRange = status.PercentageBalance > lowerBound && status.PercentageBalance < thresholdPercent
	return status
}
