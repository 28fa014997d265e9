// Package service coordinates aggregation cycles and owns the latest
// published book, fanning results out to the optional cache, signal bus
// and notifier.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/quantfold/obagg/internal/book"
	"github.com/quantfold/obagg/internal/domain"
)

// CycleRunner runs one aggregation cycle.
type CycleRunner interface {
	Run(ctx context.Context) (*domain.AggregationCycle, error)
}

// BookService holds the only long-lived book state: an atomic pointer to
// the last successful cycle, swapped whole so readers never observe a
// partially merged book. Cache, bus and notifier may be nil; their side
// effects are best-effort and never fail a cycle.
type BookService struct {
	pair     string
	runner   CycleRunner
	cache    domain.BookCache
	bus      domain.SignalBus
	notifier domain.Notifier
	logger   *slog.Logger

	latest  atomic.Pointer[domain.AggregationCycle] // last successful cycle
	lastRun atomic.Pointer[domain.AggregationCycle] // last attempt, any outcome
	down    atomic.Bool
	crossed atomic.Bool
}

// NewBookService builds the service around a cycle runner. cache, bus and
// notifier are optional.
func NewBookService(
	pair string,
	runner CycleRunner,
	cache domain.BookCache,
	bus domain.SignalBus,
	notifier domain.Notifier,
	logger *slog.Logger,
) *BookService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookService{
		pair:     pair,
		runner:   runner,
		cache:    cache,
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "book_service")),
	}
}

// Pair returns the trading pair this service aggregates.
func (s *BookService) Pair() string { return s.pair }

// Refresh runs one aggregation cycle and publishes the outcome. A failed
// cycle leaves the previously published book in place.
func (s *BookService) Refresh(ctx context.Context) (*domain.AggregationCycle, error) {
	cycle, err := s.runner.Run(ctx)
	if cycle != nil {
		s.lastRun.Store(cycle)
	}
	if err != nil {
		s.alertFailure(ctx, err)
		return cycle, err
	}

	s.latest.Store(cycle)
	s.alertRecovered(ctx)
	s.alertCrossed(ctx, cycle.Book)
	s.cacheAndPublish(ctx, cycle.Book)
	return cycle, nil
}

// Latest returns the most recent successful cycle.
func (s *BookService) Latest() (*domain.AggregationCycle, bool) {
	c := s.latest.Load()
	return c, c != nil
}

// LastRun returns the most recent attempt, successful or not.
func (s *BookService) LastRun() (*domain.AggregationCycle, bool) {
	c := s.lastRun.Load()
	return c, c != nil
}

// Book returns the currently published aggregated book, or ErrNoBook
// before the first successful cycle.
func (s *BookService) Book() (*domain.AggregatedBook, error) {
	if c := s.latest.Load(); c != nil {
		return c.Book, nil
	}
	return nil, domain.ErrNoBook
}

// Quote prices target against the currently published book.
func (s *BookService) Quote(side domain.QuoteSide, target decimal.Decimal) (*domain.QuoteResult, error) {
	bk, err := s.Book()
	if err != nil {
		return nil, fmt.Errorf("book_service: quote: %w", err)
	}
	return book.Quote(bk, side, target)
}

// QuoteBoth prices target on both sides of the current book.
func (s *BookService) QuoteBoth(target decimal.Decimal) (buy, sell *domain.QuoteResult, err error) {
	bk, err := s.Book()
	if err != nil {
		return nil, nil, fmt.Errorf("book_service: quote: %w", err)
	}
	if buy, err = book.Quote(bk, domain.QuoteBuy, target); err != nil {
		return nil, nil, err
	}
	if sell, err = book.Quote(bk, domain.QuoteSell, target); err != nil {
		return nil, nil, err
	}
	return buy, sell, nil
}

func (s *BookService) cacheAndPublish(ctx context.Context, bk *domain.AggregatedBook) {
	if s.cache != nil {
		if err := s.cache.SetBook(ctx, bk); err != nil {
			s.logger.WarnContext(ctx, "book_service: cache book failed",
				slog.String("error", err.Error()),
			)
		}
	}
	if s.bus == nil {
		return
	}

	evt := map[string]any{
		"event":    "book_update",
		"pair":     bk.Pair,
		"cycle_id": bk.CycleID,
		"sources":  bk.Sources,
		"bids":     len(bk.Bids),
		"asks":     len(bk.Asks),
		"crossed":  bk.Crossed(),
		"as_of":    bk.AsOf.Format(time.RFC3339Nano),
	}
	if bid, ok := bk.BestBid(); ok {
		evt["best_bid"] = bid.Price.String()
		evt["best_bid_qty"] = bid.Quantity.String()
	}
	if ask, ok := bk.BestAsk(); ok {
		evt["best_ask"] = ask.Price.String()
		evt["best_ask_qty"] = ask.Quantity.String()
	}

	payload, _ := json.Marshal(evt)
	if err := s.bus.Publish(ctx, "ch:book:"+s.pair, payload); err != nil {
		s.logger.WarnContext(ctx, "book_service: publish book update failed",
			slog.String("error", err.Error()),
		)
	}
}

// alertFailure fires once per outage, not once per failed cycle.
func (s *BookService) alertFailure(ctx context.Context, err error) {
	if s.down.Swap(true) {
		return
	}
	if s.bus != nil {
		payload, _ := json.Marshal(map[string]any{
			"event": "aggregation_failed",
			"pair":  s.pair,
			"error": err.Error(),
		})
		if pubErr := s.bus.Publish(ctx, "ch:status", payload); pubErr != nil {
			s.logger.WarnContext(ctx, "book_service: publish status failed",
				slog.String("error", pubErr.Error()),
			)
		}
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, "aggregation_failed", "Aggregation failed",
			fmt.Sprintf("No exchange delivered a book for %s: %v", s.pair, err))
	}
}

func (s *BookService) alertRecovered(ctx context.Context) {
	if !s.down.Swap(false) {
		return
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, "aggregation_recovered", "Aggregation recovered",
			fmt.Sprintf("Exchange books for %s are flowing again", s.pair))
	}
}

// alertCrossed fires on the transition into a crossed state and re-arms
// once the book uncrosses.
func (s *BookService) alertCrossed(ctx context.Context, bk *domain.AggregatedBook) {
	if !bk.Crossed() {
		s.crossed.Store(false)
		return
	}
	if s.crossed.Swap(true) {
		return
	}

	bid, _ := bk.BestBid()
	ask, _ := bk.BestAsk()
	s.logger.WarnContext(ctx, "book_service: published book is crossed",
		slog.String("best_bid", bid.Price.String()),
		slog.String("best_ask", ask.Price.String()),
	)
	if s.notifier != nil {
		s.notifier.Notify(ctx, "crossed_book", "Crossed book",
			fmt.Sprintf("%s best bid %s is at or above best ask %s across %v",
				bk.Pair, bid.Price, ask.Price, bk.Sources))
	}
}
