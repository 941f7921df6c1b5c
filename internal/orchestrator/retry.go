package orchestrator

import "time"

// RetryPolicy shapes the backoff between failed watch cycles: the first
// failure waits MinDelay, each consecutive failure multiplies the wait, and
// MaxDelay caps it. A successful cycle resets the sequence.
type RetryPolicy struct {
	MinDelay   time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// DefaultRetryPolicy backs off from 2s doubling up to the cap. MaxDelay is
// left unset so Watch caps the backoff at its own interval.
var DefaultRetryPolicy = RetryPolicy{
	MinDelay:   2 * time.Second,
	Multiplier: 2,
}

func (p RetryPolicy) normalized(fallbackMax time.Duration) RetryPolicy {
	if p.MinDelay <= 0 {
		p.MinDelay = DefaultRetryPolicy.MinDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = DefaultRetryPolicy.Multiplier
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = fallbackMax
	}
	if p.MaxDelay < p.MinDelay {
		p.MaxDelay = p.MinDelay
	}
	return p
}

// Next returns the wait after one more consecutive failure. A zero current
// delay starts the sequence at MinDelay.
func (p RetryPolicy) Next(current time.Duration) time.Duration {
	if current <= 0 {
		return p.MinDelay
	}
	next := time.Duration(float64(current) * p.Multiplier)
	if next > p.MaxDelay {
		return p.MaxDelay
	}
	if next < current {
		// Multiplier overflow guard.
		return p.MaxDelay
	}
	return next
}
