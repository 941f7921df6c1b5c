package orchestrator

import (
	"context"
	"time"
)

// Watch runs cycles on a fixed cadence until the context is canceled. A
// failed cycle never stops the loop: consecutive failures back off per the
// policy and any success restores the regular interval.
func (o *Orchestrator) Watch(ctx context.Context, interval time.Duration, policy RetryPolicy) error {
	if interval <= 0 {
		interval = time.Minute
	}
	policy = policy.normalized(interval)

	o.logger.Info("watch started", "interval", interval.String())

	var backoff time.Duration
	for {
		res, err := o.Run(ctx)
		wait := interval
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			backoff = policy.Next(backoff)
			wait = backoff
			o.logger.Warn("cycle failed, backing off", "retry_in", wait.String(), "error", err)
		} else {
			backoff = 0
			o.logger.Info("cycle complete",
				"action", string(res.Action),
				"position_id", res.PositionID,
				"next_run_in", interval.String())
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			o.logger.Info("watch stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}
