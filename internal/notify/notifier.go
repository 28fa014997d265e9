// Package notify fans operator alerts out to messaging channels. Delivery is
// fire-and-forget: the aggregation path never waits on a webhook and never
// sees a delivery error.
package notify

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/quantfold/obagg/internal/domain"
)

// sendTimeout bounds background delivery of one alert across all senders.
const sendTimeout = 10 * time.Second

// Sender is one delivery channel.
type Sender interface {
	// Send delivers a single alert.
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel in logs, e.g. "telegram".
	Name() string
}

// Notifier dispatches alerts to its senders, filtered by event type.
type Notifier struct {
	senders []Sender
	allowed map[string]struct{}
	logger  *slog.Logger
}

var _ domain.Notifier = (*Notifier)(nil)

// NewNotifier builds a Notifier over the given senders. Only events named in
// events pass the filter; an empty list lets everything through.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = struct{}{}
		}
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// wants reports whether the event passes the configured filter.
func (n *Notifier) wants(event string) bool {
	if len(n.allowed) == 0 {
		return true
	}
	_, ok := n.allowed[event]
	return ok
}

// Notify fans the alert out to every sender in parallel. Delivery runs on a
// context detached from the caller so a finished or cancelled aggregation
// cycle cannot lose its own alert, bounded by sendTimeout instead.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) {
	if len(n.senders) == 0 {
		return
	}
	if !n.wants(event) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	var wg sync.WaitGroup
	for _, s := range n.senders {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.deliver(sendCtx, s, event, title, message)
		}()
	}
	go func() {
		wg.Wait()
		cancel()
	}()
}

// deliver runs one sender and logs the outcome; a failing channel never
// affects the others.
func (n *Notifier) deliver(ctx context.Context, s Sender, event, title, message string) {
	if err := s.Send(ctx, title, message); err != nil {
		n.logger.ErrorContext(ctx, "sender failed",
			slog.String("sender", s.Name()),
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
		return
	}
	n.logger.DebugContext(ctx, "alert sent",
		slog.String("sender", s.Name()),
		slog.String("event", event),
		slog.String("title", title),
	)
}
