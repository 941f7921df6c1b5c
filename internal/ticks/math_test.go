package ticks

import (
	"errors"
	"testing"

	"github.com/cockroachdb/apd/v3"

	"github.com/CryptoChem0000/clrebalancer/internal/domain"
)

func mustDecimal(t *testing.T, s string) *apd.Decimal {
	t.Helper()
	d, _, err := apd.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

func TestTickToPrice_KnownValues(t *testing.T) {
	cases := []struct {
		tick  int64
		price string
	}{
		{0, "1"},
		{1, "1.000001"},
		{-1, "0.9999999"},
		{9_000_000, "10"},
		{9_000_100, "10.00100"},
		{-9_000_000, "0.1"},
		{MaxTick, "1E+38"},
		{MinTick, "1E-12"},
	}
	for _, tc := range cases {
		got, err := TickToPrice(tc.tick)
		if err != nil {
			t.Fatalf("TickToPrice(%d): %v", tc.tick, err)
		}
		want := mustDecimal(t, tc.price)
		if got.Cmp(want) != 0 {
			t.Errorf("TickToPrice(%d) = %s, want %s", tc.tick, got, want)
		}
	}
}

func TestTickToPrice_OutOfDomain(t *testing.T) {
	for _, tick := range []int64{MinTick - 1, MaxTick + 1} {
		if _, err := TickToPrice(tick); !errors.Is(err, domain.ErrTickOutOfRange) {
			t.Errorf("TickToPrice(%d): expected ErrTickOutOfRange, got %v", tick, err)
		}
	}
}

func TestPriceToTick_KnownValues(t *testing.T) {
	cases := []struct {
		price string
		tick  int64
	}{
		{"1", 0},
		{"1.000001", 1},
		{"0.9999999", -1},
		{"10", 9_000_000},
		{"2", 1_000_000},
		{"0.1", -9_000_000},
		// Mid-increment prices floor to the tick below.
		{"1.0000015", 1},
	}
	for _, tc := range cases {
		got, err := PriceToTick(mustDecimal(t, tc.price))
		if err != nil {
			t.Fatalf("PriceToTick(%s): %v", tc.price, err)
		}
		if got != tc.tick {
			t.Errorf("PriceToTick(%s) = %d, want %d", tc.price, got, tc.tick)
		}
	}
}

func TestPriceToTick_OutOfDomain(t *testing.T) {
	for _, price := range []string{"0", "-1", "1E-13", "1.1E+38"} {
		if _, err := PriceToTick(mustDecimal(t, price)); !errors.Is(err, domain.ErrTickOutOfRange) {
			t.Errorf("PriceToTick(%s): expected ErrTickOutOfRange, got %v", price, err)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	// For all sampled ticks t and spacings s:
	// RoundToTickSpacing(PriceToTick(TickToPrice(t)), s) == RoundToTickSpacing(t, s).
	ticks := []int64{
		MinTick, MinTick + 1, -9_000_001, -9_000_000, -8_999_999,
		-100, -1, 0, 1, 99, 100, 8_999_999, 9_000_000, 9_000_001,
		123_456_789, MaxTick - 1, MaxTick,
	}
	spacings := []int64{1, 10, 100, 1000}

	for _, tick := range ticks {
		price, err := TickToPrice(tick)
		if err != nil {
			t.Fatalf("TickToPrice(%d): %v", tick, err)
		}
		back, err := PriceToTick(price)
		if err != nil {
			t.Fatalf("PriceToTick(TickToPrice(%d)): %v", tick, err)
		}
		if back != tick {
			t.Errorf("round trip: tick %d -> price %s -> tick %d", tick, price, back)
		}
		for _, s := range spacings {
			if got, want := RoundToTickSpacing(back, s), RoundToTickSpacing(tick, s); got != want {
				t.Errorf("round trip with spacing %d: got %d, want %d", s, got, want)
			}
		}
	}
}

func TestRoundToTickSpacing(t *testing.T) {
	cases := []struct {
		tick, spacing, want int64
	}{
		{0, 100, 0},
		{150, 100, 100},
		{199, 100, 100},
		{200, 100, 200},
		{-1, 100, -100},
		{-100, 100, -100},
		{-101, 100, -200},
		{7, 1, 7},
	}
	for _, tc := range cases {
		if got := RoundToTickSpacing(tc.tick, tc.spacing); got != tc.want {
			t.Errorf("RoundToTickSpacing(%d, %d) = %d, want %d", tc.tick, tc.spacing, got, tc.want)
		}
	}
}

func TestRoundToTickSpacing_Idempotent(t *testing.T) {
	for _, tick := range []int64{-9_000_001, -150, -1, 0, 1, 99, 12_345_678} {
		for _, s := range []int64{1, 10, 100, 1000} {
			once := RoundToTickSpacing(tick, s)
			twice := RoundToTickSpacing(once, s)
			if once != twice {
				t.Errorf("rounding not idempotent: tick %d spacing %d: %d != %d", tick, s, once, twice)
			}
		}
	}
}

func TestRangeForBand(t *testing.T) {
	// Pool tick spacing 100, band 5%, price 10.0: bounds 9.5 and 10.5 must
	// produce ticks that are multiples of 100 bracketing the current price.
	price := mustDecimal(t, "10.0")
	band := mustDecimal(t, "0.05")

	lower, upper, err := RangeForBand(price, band, 100)
	if err != nil {
		t.Fatalf("RangeForBand: %v", err)
	}
	if lower%100 != 0 || upper%100 != 0 {
		t.Errorf("bounds not multiples of spacing: lower %d upper %d", lower, upper)
	}
	cur, err := PriceToTick(price)
	if err != nil {
		t.Fatalf("PriceToTick: %v", err)
	}
	if !(lower < cur && cur < upper) {
		t.Errorf("range [%d, %d] does not bracket current tick %d", lower, upper, cur)
	}

	// 9.5 sits 9/10 of the way through the [1, 10) segment's final decade:
	// tick for 9.5 is 8_500_000, floored to spacing stays 8_500_000.
	if lower != 8_500_000 {
		t.Errorf("lower = %d, want 8500000", lower)
	}
	// 10.5 is 500_000 increments into the [10, 100) segment.
	if upper != 9_050_000 {
		t.Errorf("upper = %d, want 9050000", upper)
	}
}

func TestRangeForBand_CollapsedRange(t *testing.T) {
	price := mustDecimal(t, "10.0")
	band := mustDecimal(t, "0.0001") // 0.01% band collapses under spacing 1000

	lower, upper, err := RangeForBand(price, band, 1000)
	if err != nil {
		t.Fatalf("RangeForBand: %v", err)
	}
	if upper <= lower {
		t.Errorf("expected non-empty range, got [%d, %d]", lower, upper)
	}
	if upper-lower != 1000 {
		t.Errorf("collapsed range should span one spacing, got [%d, %d]", lower, upper)
	}
}
