package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfold/obagg/internal/domain"
)

// BookService defines the methods the book handler requires from the service
// layer. It is declared locally so the handler package does not depend on the
// concrete service implementation.
type BookService interface {
	Pair() string
	Latest() (*domain.AggregationCycle, bool)
}

// BookHandler serves the aggregated book endpoints. When the process has not
// completed a cycle yet it falls back to the shared Redis snapshot, so a
// freshly restarted instance can answer reads immediately.
type BookHandler struct {
	svc    BookService
	cache  domain.BookCache // may be nil
	logger *slog.Logger
}

// NewBookHandler creates a BookHandler. cache is optional.
func NewBookHandler(svc BookService, cache domain.BookCache, logger *slog.Logger) *BookHandler {
	return &BookHandler{
		svc:    svc,
		cache:  cache,
		logger: logger.With(slog.String("handler", "book")),
	}
}

// bookResponse is the wire form of an aggregated book.
type bookResponse struct {
	Pair    string              `json:"pair"`
	CycleID string              `json:"cycle_id"`
	Bids    []domain.PriceLevel `json:"bids"`
	Asks    []domain.PriceLevel `json:"asks"`
	Sources []string            `json:"sources"`
	Crossed bool                `json:"crossed"`
	AsOf    time.Time           `json:"as_of"`
}

// bboLevel is one side of the top of book.
type bboLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// bboResponse is the wire form of the top of book. An empty side is omitted
// entirely rather than rendered as zero.
type bboResponse struct {
	Pair    string           `json:"pair"`
	Bid     *bboLevel        `json:"bid,omitempty"`
	Ask     *bboLevel        `json:"ask,omitempty"`
	Spread  *decimal.Decimal `json:"spread,omitempty"`
	Crossed bool             `json:"crossed"`
	CycleID string           `json:"cycle_id"`
	AsOf    time.Time        `json:"as_of"`
}

// GetBook returns the current aggregated book, optionally truncated.
// GET /api/book?depth=N
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	bk, err := h.currentBook(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "no aggregated book yet")
		return
	}

	depth := parseDepth(r)
	bids, asks := bk.Bids, bk.Asks
	if depth > 0 {
		if len(bids) > depth {
			bids = bids[:depth]
		}
		if len(asks) > depth {
			asks = asks[:depth]
		}
	}

	respond(w, http.StatusOK, bookResponse{
		Pair:    bk.Pair,
		CycleID: bk.CycleID,
		Bids:    bids,
		Asks:    asks,
		Sources: bk.Sources,
		Crossed: bk.Crossed(),
		AsOf:    bk.AsOf,
	})
}

// GetBBO returns the best bid and ask of the current aggregated book.
// GET /api/book/bbo
func (h *BookHandler) GetBBO(w http.ResponseWriter, r *http.Request) {
	bk, err := h.currentBook(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "no aggregated book yet")
		return
	}

	resp := bboResponse{
		Pair:    bk.Pair,
		Crossed: bk.Crossed(),
		CycleID: bk.CycleID,
		AsOf:    bk.AsOf,
	}
	if bid, ok := bk.BestBid(); ok {
		resp.Bid = &bboLevel{Price: bid.Price, Quantity: bid.Quantity}
	}
	if ask, ok := bk.BestAsk(); ok {
		resp.Ask = &bboLevel{Price: ask.Price, Quantity: ask.Quantity}
	}
	if spread, ok := bk.Spread(); ok {
		resp.Spread = &spread
	}

	respond(w, http.StatusOK, resp)
}

// currentBook prefers the in-process book and falls back to the shared cache.
func (h *BookHandler) currentBook(ctx context.Context) (*domain.AggregatedBook, error) {
	if cycle, ok := h.svc.Latest(); ok {
		return cycle.Book, nil
	}
	if h.cache != nil {
		bk, err := h.cache.GetBook(ctx, h.svc.Pair())
		if err == nil {
			return bk, nil
		}
		if !errors.Is(err, domain.ErrNoBook) {
			h.logger.WarnContext(ctx, "handler: cache fallback failed",
				slog.String("error", err.Error()),
			)
		}
	}
	return nil, domain.ErrNoBook
}
