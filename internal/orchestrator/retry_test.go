package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_DefaultCapsAtWatchInterval(t *testing.T) {
	p := DefaultRetryPolicy.normalized(5 * time.Minute)
	require.Equal(t, 2*time.Second, p.MinDelay)
	require.Equal(t, 5*time.Minute, p.MaxDelay)

	var d time.Duration
	for i := 0; i < 12; i++ {
		d = p.Next(d)
	}
	require.Equal(t, 5*time.Minute, d)
}

func TestRetryPolicy_NormalizedFillsZeroFields(t *testing.T) {
	p := RetryPolicy{}.normalized(time.Minute)
	require.Equal(t, DefaultRetryPolicy.MinDelay, p.MinDelay)
	require.Equal(t, DefaultRetryPolicy.Multiplier, p.Multiplier)
	require.Equal(t, time.Minute, p.MaxDelay)
}

func TestRetryPolicy_ExplicitMaxDelayWins(t *testing.T) {
	p := RetryPolicy{MinDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 3}.normalized(time.Hour)
	require.Equal(t, 30*time.Second, p.MaxDelay)

	require.Equal(t, time.Second, p.Next(0))
	require.Equal(t, 3*time.Second, p.Next(time.Second))
	require.Equal(t, 30*time.Second, p.Next(20*time.Second))
}

func TestRetryPolicy_NextResetsFromZero(t *testing.T) {
	p := RetryPolicy{MinDelay: 2 * time.Second, MaxDelay: time.Minute, Multiplier: 2}
	require.Equal(t, 2*time.Second, p.Next(0))
}
