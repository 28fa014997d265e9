// Package book implements the canonical order-book operations: side
// normalization, cross-exchange merging and quantity-aware quoting. All
// functions are pure; nothing here does I/O or keeps state.
package book

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/quantfold/obagg/internal/domain"
)

// Ordering fixes the canonical sort direction of a book side.
type Ordering int

const (
	// BidOrdering sorts descending so the best (highest) bid comes first.
	BidOrdering Ordering = iota
	// AskOrdering sorts ascending so the best (lowest) ask comes first.
	AskOrdering
)

func less(a, b decimal.Decimal, ord Ordering) bool {
	if ord == BidOrdering {
		return a.GreaterThan(b)
	}
	return a.LessThan(b)
}

// NormalizeSide sorts levels into canonical order and collapses duplicate
// prices, keeping the later occurrence in payload order. The input slice is
// left untouched.
func NormalizeSide(levels []domain.PriceLevel, ord Ordering) []domain.PriceLevel {
	if len(levels) == 0 {
		return nil
	}

	sorted := make([]domain.PriceLevel, len(levels))
	copy(sorted, levels)
	sort.SliceStable(sorted, func(i, j int) bool {
		return less(sorted[i].Price, sorted[j].Price, ord)
	})

	out := sorted[:0]
	for _, lvl := range sorted {
		if n := len(out); n > 0 && out[n-1].Price.Equal(lvl.Price) {
			// Stable sort preserves payload order within an equal-price
			// run, so the run's last element is the payload's last update.
			out[n-1] = lvl
			continue
		}
		out = append(out, lvl)
	}
	return out
}

// mergeSide unions the levels of every side, summing quantity where prices
// are equal. Concatenate, sort, coalesce: summation makes the result
// independent of the order books arrive in.
func mergeSide(sides [][]domain.PriceLevel, ord Ordering) []domain.PriceLevel {
	total := 0
	for _, s := range sides {
		total += len(s)
	}
	if total == 0 {
		return nil
	}

	all := make([]domain.PriceLevel, 0, total)
	for _, s := range sides {
		all = append(all, s...)
	}
	sort.Slice(all, func(i, j int) bool {
		return less(all[i].Price, all[j].Price, ord)
	})

	out := make([]domain.PriceLevel, 0, len(all))
	for _, lvl := range all {
		if n := len(out); n > 0 && out[n-1].Price.Equal(lvl.Price) {
			out[n-1].Quantity = out[n-1].Quantity.Add(lvl.Quantity)
			continue
		}
		out = append(out, lvl)
	}
	return out
}

// Merge combines per-exchange books into a single aggregated view for pair.
// Quantities at equal prices are summed across exchanges. depthLimit > 0
// truncates each merged side to its best levels; 0 keeps full depth. The
// caller stamps CycleID and AsOf. A crossed result is returned as-is.
func Merge(pair string, books []*domain.ExchangeBook, depthLimit int) *domain.AggregatedBook {
	bidSides := make([][]domain.PriceLevel, 0, len(books))
	askSides := make([][]domain.PriceLevel, 0, len(books))
	sources := make([]string, 0, len(books))
	for _, b := range books {
		if b == nil {
			continue
		}
		bidSides = append(bidSides, b.Bids)
		askSides = append(askSides, b.Asks)
		sources = append(sources, b.Exchange)
	}
	sort.Strings(sources)

	return &domain.AggregatedBook{
		Pair:    pair,
		Bids:    truncate(mergeSide(bidSides, BidOrdering), depthLimit),
		Asks:    truncate(mergeSide(askSides, AskOrdering), depthLimit),
		Sources: sources,
	}
}

func truncate(levels []domain.PriceLevel, limit int) []domain.PriceLevel {
	if limit > 0 && len(levels) > limit {
		return levels[:limit]
	}
	return levels
}
