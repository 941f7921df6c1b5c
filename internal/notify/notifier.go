// Package notify delivers operator alerts for position lifecycle events.
// Every alert fans out to all configured channels; an optional event filter
// lets operators subscribe to only the events they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Event classifies what happened. Filters match on these values.
type Event string

const (
	// EventPositionCreated fires when a new position is opened.
	EventPositionCreated Event = "position_created"
	// EventPositionRebalanced fires when an out-of-range position was
	// withdrawn, the pair rebalanced, and a new position opened.
	EventPositionRebalanced Event = "position_rebalanced"
	// EventRunError fires when an orchestration run fails.
	EventRunError Event = "run_error"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans an event out to all senders. A Notifier with no senders is
// valid and does nothing, so callers never need a nil check.
type Notifier struct {
	senders []Sender
	allowed map[Event]bool
	logger  *slog.Logger
}

// NewNotifier builds a Notifier delivering to senders. If events is non-empty
// only those events are forwarded; an empty list means everything.
func NewNotifier(senders []Sender, events []Event, logger *slog.Logger) *Notifier {
	allowed := make(map[Event]bool, len(events))
	for _, e := range events {
		allowed[Event(strings.TrimSpace(string(e)))] = true
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers one event to every configured channel. Channel failures are
// logged and collected; one failing channel never blocks the others.
func (n *Notifier) Notify(ctx context.Context, event Event, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}
	if len(n.allowed) > 0 && !n.allowed[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", string(event)))
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "notification delivery failed",
				slog.String("sender", s.Name()),
				slog.String("event", string(event)),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("event", string(event)),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d channel(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
