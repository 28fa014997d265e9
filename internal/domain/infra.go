package domain

import (
	"context"
	"time"
)

// BookCache stores the latest aggregated book for fast reads by other
// processes. Implementations keep only the current snapshot, bounded by a
// TTL; there is no history.
type BookCache interface {
	SetBook(ctx context.Context, book *AggregatedBook) error
	GetBook(ctx context.Context, pair string) (*AggregatedBook, error)
}

// RateDecision is the outcome of an inbound rate limit check. Remaining is
// the number of requests left in the current window and is only meaningful
// when the request was allowed.
type RateDecision struct {
	Allowed   bool
	Remaining int
}

// RateLimiter provides keyed rate limiting for inbound API clients. It is
// unrelated to the per-exchange Limiter that paces outbound fetches.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (RateDecision, error)
}

// SignalBus provides pub/sub fan-out of book updates and status events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Notifier delivers operator alerts, filtered by event type. Implementations
// must never block the aggregation path; delivery failures are logged, not
// returned.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string)
}
