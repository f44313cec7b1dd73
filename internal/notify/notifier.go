// Package notify delivers operator alerts for trading events that need a
// human's attention: naked legs, daily-loss halts, stale venue feeds. Alerts
// fan out to every configured channel and can be narrowed to a subset of
// event types.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Sender is one delivery channel (Telegram bot, Discord webhook, ...).
type Sender interface {
	Send(ctx context.Context, title, body string) error
	Name() string
}

// Notifier fans alerts out to its senders, filtered by event type. An empty
// event filter passes everything.
type Notifier struct {
	senders []Sender
	allowed map[string]struct{}
	logger  *slog.Logger
}

// New builds a Notifier delivering to senders. Only events named in the
// events list pass the filter; an empty list disables filtering.
func New(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	n := &Notifier{
		senders: senders,
		allowed: make(map[string]struct{}, len(events)),
		logger:  logger.With(slog.String("component", "notifier")),
	}
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			n.allowed[e] = struct{}{}
		}
	}
	return n
}

// Enabled reports whether alerts of the given event type pass the filter.
func (n *Notifier) Enabled(event string) bool {
	if len(n.allowed) == 0 {
		return true
	}
	_, ok := n.allowed[event]
	return ok
}

// Notify delivers an alert to every sender if the event type passes the
// filter. A failing sender never blocks delivery to the others; all failures
// are joined into the returned error.
func (n *Notifier) Notify(ctx context.Context, event, title, body string) error {
	if !n.Enabled(event) {
		n.logger.DebugContext(ctx, "alert filtered", slog.String("event", event))
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, body); err != nil {
			n.logger.ErrorContext(ctx, "alert delivery failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "alert delivered",
			slog.String("sender", s.Name()),
			slog.String("event", event),
		)
	}
	return errors.Join(errs...)
}
