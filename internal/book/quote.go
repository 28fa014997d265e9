package book

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quantfold/obagg/internal/domain"
)

// Quote fills target against the relevant side of bk and reports the
// volume-weighted outcome. Buying consumes asks from the best price up,
// selling consumes bids from the best price down. target must be positive.
// Insufficient depth yields a partial result, not an error; the zero-fill
// case is detectable through QuoteResult.Unfillable.
func Quote(bk *domain.AggregatedBook, side domain.QuoteSide, target decimal.Decimal) (*domain.QuoteResult, error) {
	if !side.Valid() {
		return nil, fmt.Errorf("book: quote side %q: %w", side, domain.ErrInvalidSide)
	}
	if !target.IsPositive() {
		return nil, fmt.Errorf("book: quote target %s: %w", target, domain.ErrInvalidQuantity)
	}

	levels := bk.Asks
	if side == domain.QuoteSell {
		levels = bk.Bids
	}

	res := &domain.QuoteResult{
		Side:           side,
		Pair:           bk.Pair,
		TargetQuantity: target,
	}

	remaining := target
	filled := decimal.Zero
	cost := decimal.Zero
	for _, lvl := range levels {
		take := lvl.Quantity
		if take.GreaterThan(remaining) {
			take = remaining
		}
		filled = filled.Add(take)
		cost = cost.Add(lvl.Price.Mul(take))
		remaining = remaining.Sub(take)
		res.WorstPrice = lvl.Price
		res.LevelsUsed++
		if remaining.IsZero() {
			break
		}
	}

	res.AchievableQuantity = filled
	res.TotalCost = cost
	res.FullyFilled = remaining.IsZero()
	if filled.IsPositive() {
		res.VolumeWeightedPrice = cost.Div(filled)
	}
	return res, nil
}
