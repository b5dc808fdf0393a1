// Package notify delivers operator alerts over external channels.
// Notifications fan out to every registered sender and can be filtered
// by event type so operators only receive the outcomes they care about.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Sender is a single notification channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel, e.g. "telegram".
	Name() string
}

// Notifier dispatches notifications to one or more Senders, filtered by
// an allowlist of event types. An empty allowlist passes everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
}

// New creates a Notifier delivering to the given senders. Only events
// whose type appears in events are forwarded; an empty slice allows all.
func New(senders []Sender, events []string) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		e = strings.TrimSpace(e)
		if e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{senders: senders, events: allowed}
}

// Notify delivers to all senders when the event type is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// dispatch sends to every sender. A failing sender does not block the
// rest; failures are collected into one combined error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			log.Printf("[notify] sender %s failed: %v", s.Name(), err)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
