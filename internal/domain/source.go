package domain

import "context"

// Source fetches one normalized order-book snapshot from one exchange.
// Implementations classify failures with the ErrFetch sentinels and respect
// context cancellation at every blocking step; a failed fetch never returns
// a partial book.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (*ExchangeBook, error)
}

// Limiter gates outbound requests for a single exchange. Every source owns
// an independent instance, so one exchange's throttling never delays
// another's fetch.
type Limiter interface {
	// Allow reports whether a permit is immediately available and consumes
	// it when so.
	Allow() bool
	// Wait blocks until a permit is granted, admitting waiters in arrival
	// order, or until ctx ends.
	Wait(ctx context.Context) error
}
