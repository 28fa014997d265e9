package domain

import "github.com/shopspring/decimal"

// QuoteSide selects which side of the book a quote consumes. Buying fills
// against asks, selling against bids.
type QuoteSide string

const (
	QuoteBuy  QuoteSide = "buy"
	QuoteSell QuoteSide = "sell"
)

// Valid reports whether s is a recognized side.
func (s QuoteSide) Valid() bool {
	return s == QuoteBuy || s == QuoteSell
}

// QuoteResult is the outcome of filling a target quantity against the
// aggregated book. It is derived per query and never cached across cycles.
// When AchievableQuantity is zero the price fields carry no meaning and
// serialized forms must omit them rather than render zeros.
type QuoteResult struct {
	Side                QuoteSide
	Pair                string
	TargetQuantity      decimal.Decimal
	AchievableQuantity  decimal.Decimal
	VolumeWeightedPrice decimal.Decimal
	WorstPrice          decimal.Decimal
	TotalCost           decimal.Decimal
	FullyFilled         bool
	LevelsUsed          int
}

// Unfillable reports whether nothing at all could be filled, i.e. the
// quoted side of the book was empty.
func (q *QuoteResult) Unfillable() bool {
	return q.AchievableQuantity.IsZero()
}
