package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel is a single price+quantity entry on one side of an order book.
// Quantity is always positive; zero-quantity levels are dropped during
// normalization and never stored.
type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// ExchangeBook is one exchange's normalized order-book snapshot. Bids are
// sorted descending by price and asks ascending, with prices unique within
// a side. A well-formed snapshot with no levels on either side is valid.
type ExchangeBook struct {
	Exchange  string
	Bids      []PriceLevel
	Asks      []PriceLevel
	FetchedAt time.Time
}

// AggregatedBook is the merged view across all contributing exchanges for a
// single pair. Each aggregation cycle builds a fresh value; a published
// book is never mutated.
type AggregatedBook struct {
	Pair    string       `json:"pair"`
	CycleID string       `json:"cycle_id"`
	Bids    []PriceLevel `json:"bids"`
	Asks    []PriceLevel `json:"asks"`
	Sources []string     `json:"sources"`
	AsOf    time.Time    `json:"as_of"`
}

// BestBid returns the highest bid level. ok is false when the bid side is
// empty; an absent best price is reported that way, never as zero.
func (b *AggregatedBook) BestBid() (PriceLevel, bool) {
	if len(b.Bids) == 0 {
		return PriceLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest ask level. ok is false when the ask side is
// empty.
func (b *AggregatedBook) BestAsk() (PriceLevel, bool) {
	if len(b.Asks) == 0 {
		return PriceLevel{}, false
	}
	return b.Asks[0], true
}

// Spread returns best ask minus best bid. ok is false unless both sides
// have at least one level. A crossed book yields a zero or negative spread.
func (b *AggregatedBook) Spread() (decimal.Decimal, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return decimal.Decimal{}, false
	}
	return ask.Price.Sub(bid.Price), true
}

// Crossed reports whether the best bid is at or above the best ask. This
// can legitimately happen when snapshots from independent exchanges are
// taken at slightly different instants; it is surfaced, never repaired.
func (b *AggregatedBook) Crossed() bool {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	return okBid && okAsk && bid.Price.GreaterThanOrEqual(ask.Price)
}

// IsEmpty reports whether the book has no levels on either side.
func (b *AggregatedBook) IsEmpty() bool {
	return len(b.Bids) == 0 && len(b.Asks) == 0
}

// SourceReport records the outcome of a single exchange fetch within one
// aggregation cycle.
type SourceReport struct {
	Exchange string
	Success  bool
	Kind     string // timeout, transport or decode when failed
	Error    string
	Latency  time.Duration
	Bids     int
	Asks     int
}

// AggregationCycle bundles the merged book produced by one aggregation run
// with the per-source outcomes. Book is nil when every source failed.
type AggregationCycle struct {
	Book        *AggregatedBook
	Reports     []SourceReport
	StartedAt   time.Time
	CompletedAt time.Time
}

// Failures returns the reports of sources that did not contribute to the
// cycle.
func (c *AggregationCycle) Failures() []SourceReport {
	var out []SourceReport
	for _, r := range c.Reports {
		if !r.Success {
			out = append(out, r)
		}
	}
	return out
}

// Degraded reports whether at least one source failed while the cycle still
// produced a book.
func (c *AggregationCycle) Degraded() bool {
	return c.Book != nil && len(c.Failures()) > 0
}
