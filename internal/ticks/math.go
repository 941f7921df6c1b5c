// Package ticks implements the client-side tick arithmetic for concentrated
// liquidity pools: conversions between tick indexes and prices, and
// tick-spacing rounding.
//
// The tick scheme is geometric with additive segments: each block of
// 9,000,000 ticks covers one order of magnitude of price, subdivided
// linearly. Tick 0 corresponds to price 1 exactly. The valid tick domain is
// [-108,000,000, 342,000,000], i.e. prices from 1e-12 to 1e38.
package ticks

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"github.com/CryptoChem0000/clrebalancer/internal/domain"
)

const (
	// exponentAtPriceOne is the power of ten of the additive increment in
	// the segment containing price 1.
	exponentAtPriceOne = -6

	// ticksPerExponent is the number of ticks per order of magnitude.
	ticksPerExponent = 9_000_000

	// MinTick and MaxTick bound the valid tick domain.
	MinTick int64 = -108_000_000
	MaxTick int64 = 342_000_000
)

var (
	// MinSpotPrice is the price at MinTick.
	MinSpotPrice = apd.New(1, -12)
	// MaxSpotPrice is the price at MaxTick.
	MaxSpotPrice = apd.New(1, 38)

	// decCtx is the shared decimal context. 80 digits keeps every conversion
	// in this package exact: segment arithmetic never produces coefficients
	// anywhere near that wide.
	decCtx = apd.BaseContext.WithPrecision(80)
)

// TickToPrice converts a tick index to its exact price.
func TickToPrice(tick int64) (*apd.Decimal, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, fmt.Errorf("%w: tick %d outside [%d, %d]", domain.ErrTickOutOfRange, tick, MinTick, MaxTick)
	}
	if tick == 0 {
		return apd.New(1, 0), nil
	}

	geometricDelta := floorDiv(tick, ticksPerExponent)
	numAdditiveTicks := tick - geometricDelta*ticksPerExponent

	// price = 10^delta + numAdditiveTicks * 10^(delta + exponentAtPriceOne)
	price := apd.New(1, int32(geometricDelta))
	additive := apd.New(numAdditiveTicks, int32(geometricDelta+exponentAtPriceOne))
	if _, err := decCtx.Add(price, price, additive); err != nil {
		return nil, fmt.Errorf("ticks: tick %d to price: %w", tick, err)
	}
	return price, nil
}

// PriceToTick converts a price to the highest tick whose price does not
// exceed it (the floor tick). It is the left inverse of TickToPrice: for any
// valid tick t, PriceToTick(TickToPrice(t)) == t.
func PriceToTick(price *apd.Decimal) (int64, error) {
	if price == nil || price.Sign() <= 0 {
		return 0, fmt.Errorf("%w: price must be positive", domain.ErrTickOutOfRange)
	}
	if price.Cmp(MinSpotPrice) < 0 || price.Cmp(MaxSpotPrice) > 0 {
		return 0, fmt.Errorf("%w: price %s outside [%s, %s]", domain.ErrTickOutOfRange, price, MinSpotPrice, MaxSpotPrice)
	}

	// floor(log10(price)) from the decimal representation: number of
	// coefficient digits plus exponent, minus one.
	geometricDelta := price.NumDigits() + int64(price.Exponent) - 1

	// Ticks into the segment: (price - 10^delta) / 10^(delta - 6).
	segmentStart := apd.New(1, int32(geometricDelta))
	diff := new(apd.Decimal)
	if _, err := decCtx.Sub(diff, price, segmentStart); err != nil {
		return 0, fmt.Errorf("ticks: price %s to tick: %w", price, err)
	}
	increment := apd.New(1, int32(geometricDelta+exponentAtPriceOne))
	quo := new(apd.Decimal)
	if _, err := decCtx.Quo(quo, diff, increment); err != nil {
		return 0, fmt.Errorf("ticks: price %s to tick: %w", price, err)
	}
	floored := new(apd.Decimal)
	if _, err := decCtx.Floor(floored, quo); err != nil {
		return 0, fmt.Errorf("ticks: price %s to tick: %w", price, err)
	}
	additiveTicks, err := floored.Int64()
	if err != nil {
		return 0, fmt.Errorf("ticks: price %s to tick: %w", price, err)
	}

	tick := geometricDelta*ticksPerExponent + additiveTicks
	if tick < MinTick || tick > MaxTick {
		return 0, fmt.Errorf("%w: price %s maps to tick %d", domain.ErrTickOutOfRange, price, tick)
	}
	return tick, nil
}

// RoundToTickSpacing floors a tick to the nearest lower multiple of spacing.
// This is a floor in tick space, not a round-to-nearest, so repeated rounding
// is idempotent and negative ticks round toward more negative values.
func RoundToTickSpacing(tick, spacing int64) int64 {
	if spacing <= 1 {
		return tick
	}
	return floorDiv(tick, spacing) * spacing
}

// PriceToRoundedTick converts a price to a tick floored to the pool's tick
// spacing.
func PriceToRoundedTick(price *apd.Decimal, spacing int64) (int64, error) {
	tick, err := PriceToTick(price)
	if err != nil {
		return 0, err
	}
	return RoundToTickSpacing(tick, spacing), nil
}

// RangeForBand computes the tick bounds for a position spanning
// [price*(1-band), price*(1+band)], rounded to the pool's tick spacing. Band
// is a fraction, e.g. 0.05 for a 5% band. If rounding collapses the bounds,
// the upper tick is pushed up one spacing so the range is never empty.
func RangeForBand(price *apd.Decimal, band *apd.Decimal, spacing int64) (lower, upper int64, err error) {
	one := apd.New(1, 0)

	lowFactor := new(apd.Decimal)
	if _, err = decCtx.Sub(lowFactor, one, band); err != nil {
		return 0, 0, fmt.Errorf("ticks: band range: %w", err)
	}
	highFactor := new(apd.Decimal)
	if _, err = decCtx.Add(highFactor, one, band); err != nil {
		return 0, 0, fmt.Errorf("ticks: band range: %w", err)
	}

	lowPrice := new(apd.Decimal)
	if _, err = decCtx.Mul(lowPrice, price, lowFactor); err != nil {
		return 0, 0, fmt.Errorf("ticks: band range: %w", err)
	}
	highPrice := new(apd.Decimal)
	if _, err = decCtx.Mul(highPrice, price, highFactor); err != nil {
		return 0, 0, fmt.Errorf("ticks: band range: %w", err)
	}

	lower, err = PriceToRoundedTick(lowPrice, spacing)
	if err != nil {
		return 0, 0, err
	}
	upper, err = PriceToRoundedTick(highPrice, spacing)
	if err != nil {
		return 0, 0, err
	}
	if upper <= lower {
		upper = lower + spacing
	}
	return lower, upper, nil
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
