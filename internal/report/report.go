// Package report renders aggregation results for the CLI modes.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/quantfold/obagg/internal/domain"
)

// Money renders a decimal as US dollars with thousands separators and two
// decimal places, e.g. $671,500.23.
func Money(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	b.Grow(len(s) + len(intPart)/3 + 2)
	if neg {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i := 0; i < len(intPart); i++ {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteByte(intPart[i])
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// WriteQuote renders the full quote-mode report: sources, top of book, and
// one line per quoted side. Nil results are skipped.
func WriteQuote(w io.Writer, cycle *domain.AggregationCycle, results ...*domain.QuoteResult) {
	bk := cycle.Book
	fmt.Fprintf(w, "Pair: %s\n", bk.Pair)
	fmt.Fprintf(w, "Sources: %s\n", sourcesLine(cycle))
	writeTopOfBook(w, bk)

	wroteBlank := false
	for _, res := range results {
		if res == nil {
			continue
		}
		if !wroteBlank {
			fmt.Fprintln(w)
			wroteBlank = true
		}
		writeQuoteLine(w, res)
	}
}

// WatchLine renders one compact line for watch mode.
func WatchLine(cycle *domain.AggregationCycle) string {
	bk := cycle.Book
	parts := make([]string, 0, 5)

	if bid, ok := bk.BestBid(); ok {
		parts = append(parts, fmt.Sprintf("bid %s x%s", Money(bid.Price), bid.Quantity))
	} else {
		parts = append(parts, "bid -")
	}
	if ask, ok := bk.BestAsk(); ok {
		parts = append(parts, fmt.Sprintf("ask %s x%s", Money(ask.Price), ask.Quantity))
	} else {
		parts = append(parts, "ask -")
	}
	if spread, ok := bk.Spread(); ok {
		parts = append(parts, fmt.Sprintf("spread %s", Money(spread)))
	}
	parts = append(parts, fmt.Sprintf("sources %d/%d", len(bk.Sources), len(cycle.Reports)))
	if bk.Crossed() {
		parts = append(parts, "CROSSED")
	}

	return fmt.Sprintf("%s %s %s",
		cycle.CompletedAt.Format("15:04:05"), bk.Pair, strings.Join(parts, " | "))
}

func sourcesLine(cycle *domain.AggregationCycle) string {
	names := strings.Join(cycle.Book.Sources, ", ")
	if names == "" {
		names = "none"
	}
	summary := fmt.Sprintf("%d/%d succeeded", len(cycle.Book.Sources), len(cycle.Reports))

	fails := cycle.Failures()
	if len(fails) == 0 {
		return fmt.Sprintf("%s (%s)", names, summary)
	}
	parts := make([]string, 0, len(fails))
	for _, r := range fails {
		parts = append(parts, fmt.Sprintf("%s: %s", r.Exchange, r.Kind))
	}
	return fmt.Sprintf("%s (%s; failed %s)", names, summary, strings.Join(parts, ", "))
}

func writeTopOfBook(w io.Writer, bk *domain.AggregatedBook) {
	asset := baseAsset(bk.Pair)

	if bid, ok := bk.BestBid(); ok {
		fmt.Fprintf(w, "Best bid: %s (%s %s)\n", Money(bid.Price), bid.Quantity, asset)
	} else {
		fmt.Fprintln(w, "Best bid: none (no bid depth)")
	}
	if ask, ok := bk.BestAsk(); ok {
		fmt.Fprintf(w, "Best ask: %s (%s %s)\n", Money(ask.Price), ask.Quantity, asset)
	} else {
		fmt.Fprintln(w, "Best ask: none (no ask depth)")
	}
	if spread, ok := bk.Spread(); ok {
		fmt.Fprintf(w, "Spread: %s\n", Money(spread))
	}
	if bk.Crossed() {
		fmt.Fprintln(w, "WARNING: book is crossed (best bid at or above best ask)")
	}
}

func writeQuoteLine(w io.Writer, res *domain.QuoteResult) {
	asset := baseAsset(res.Pair)
	verb, depth := "buy", "asks"
	if res.Side == domain.QuoteSell {
		verb, depth = "sell", "bids"
	}

	switch {
	case res.Unfillable():
		fmt.Fprintf(w, "To %s %s %s: no %s available\n",
			verb, res.TargetQuantity, asset, depth)
	case !res.FullyFilled:
		fmt.Fprintf(w, "To %s %s %s: only %s %s available for %s (VWAP %s, worst %s)\n",
			verb, res.TargetQuantity, asset, res.AchievableQuantity, asset,
			Money(res.TotalCost), Money(res.VolumeWeightedPrice), Money(res.WorstPrice))
	default:
		fmt.Fprintf(w, "To %s %s %s: %s (VWAP %s, worst %s)\n",
			verb, res.TargetQuantity, asset,
			Money(res.TotalCost), Money(res.VolumeWeightedPrice), Money(res.WorstPrice))
	}
}

func baseAsset(pair string) string {
	if base, _, found := strings.Cut(pair, "-"); found && base != "" {
		return base
	}
	return pair
}
