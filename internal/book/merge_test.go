package book

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/obagg/internal/domain"
)

func level(price, qty string) domain.PriceLevel {
	return domain.PriceLevel{
		Price:    decimal.RequireFromString(price),
		Quantity: decimal.RequireFromString(qty),
	}
}

func levels(pairs ...string) []domain.PriceLevel {
	if len(pairs)%2 != 0 {
		panic("levels needs price,qty pairs")
	}
	out := make([]domain.PriceLevel, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, level(pairs[i], pairs[i+1]))
	}
	return out
}

func assertSideEqual(t *testing.T, want, got []domain.PriceLevel, msg string) {
	t.Helper()
	require.Len(t, got, len(want), msg)
	for i := range want {
		assert.Truef(t, want[i].Price.Equal(got[i].Price),
			"%s: level %d price: want %s got %s", msg, i, want[i].Price, got[i].Price)
		assert.Truef(t, want[i].Quantity.Equal(got[i].Quantity),
			"%s: level %d quantity: want %s got %s", msg, i, want[i].Quantity, got[i].Quantity)
	}
}

func TestNormalizeSide(t *testing.T) {
	unsorted := levels("99", "5", "100", "2", "98", "1")

	bids := NormalizeSide(unsorted, BidOrdering)
	assertSideEqual(t, levels("100", "2", "99", "5", "98", "1"), bids, "bids descending")

	asks := NormalizeSide(unsorted, AskOrdering)
	assertSideEqual(t, levels("98", "1", "99", "5", "100", "2"), asks, "asks ascending")

	// Input order is preserved in the caller's slice.
	assertSideEqual(t, levels("99", "5", "100", "2", "98", "1"), unsorted, "input untouched")
}

func TestNormalizeSideDuplicatePriceLastWins(t *testing.T) {
	in := levels("100", "2", "101", "7", "100", "9")

	out := NormalizeSide(in, AskOrdering)
	assertSideEqual(t, levels("100", "9", "101", "7"), out, "later payload entry replaces earlier")
}

func TestNormalizeSideEqualScaleDifferentRepresentation(t *testing.T) {
	// 100 and 100.0 are the same price and must collapse to one level.
	in := levels("100.0", "2", "100", "9")

	out := NormalizeSide(in, BidOrdering)
	require.Len(t, out, 1)
	assert.True(t, out[0].Quantity.Equal(decimal.RequireFromString("9")))
}

func TestMergeSumsQuantitiesAtEqualPrices(t *testing.T) {
	a := &domain.ExchangeBook{
		Exchange: "coinbase",
		Bids:     levels("100", "2", "99", "5"),
		Asks:     levels("101", "1", "103", "4"),
	}
	b := &domain.ExchangeBook{
		Exchange: "gemini",
		Bids:     levels("100", "3", "98", "1"),
		Asks:     levels("101", "2", "102", "6"),
	}

	merged := Merge("BTC-USD", []*domain.ExchangeBook{a, b}, 0)

	assertSideEqual(t, levels("100", "5", "99", "5", "98", "1"), merged.Bids, "merged bids")
	assertSideEqual(t, levels("101", "3", "102", "6", "103", "4"), merged.Asks, "merged asks")
	assert.Equal(t, []string{"coinbase", "gemini"}, merged.Sources)

	best, ok := merged.BestBid()
	require.True(t, ok)
	assert.True(t, best.Price.Equal(decimal.RequireFromString("100")))
	assert.True(t, best.Quantity.Equal(decimal.RequireFromString("5")), "best bid carries summed quantity")
}

func TestMergeIsOrderIndependent(t *testing.T) {
	books := []*domain.ExchangeBook{
		{Exchange: "coinbase", Bids: levels("100", "2", "99", "5"), Asks: levels("101", "1")},
		{Exchange: "gemini", Bids: levels("100", "3"), Asks: levels("101", "2", "102", "6")},
		{Exchange: "kraken", Bids: levels("99", "1", "98", "4"), Asks: levels("103", "7")},
	}

	reference := Merge("BTC-USD", books, 0)

	perms := [][]int{{0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	for _, p := range perms {
		shuffled := []*domain.ExchangeBook{books[p[0]], books[p[1]], books[p[2]]}
		got := Merge("BTC-USD", shuffled, 0)
		assertSideEqual(t, reference.Bids, got.Bids, "bids under permutation")
		assertSideEqual(t, reference.Asks, got.Asks, "asks under permutation")
		assert.Equal(t, reference.Sources, got.Sources)
	}
}

func TestMergeSingleBookIdentity(t *testing.T) {
	only := &domain.ExchangeBook{
		Exchange: "gemini",
		Bids:     levels("100", "2", "99", "5"),
		Asks:     levels("101", "1", "102", "10"),
	}

	merged := Merge("BTC-USD", []*domain.ExchangeBook{only}, 0)

	assertSideEqual(t, only.Bids, merged.Bids, "single-source bids pass through")
	assertSideEqual(t, only.Asks, merged.Asks, "single-source asks pass through")
	assert.Equal(t, []string{"gemini"}, merged.Sources)
}

func TestMergeEmptyInputs(t *testing.T) {
	merged := Merge("BTC-USD", nil, 0)
	assert.True(t, merged.IsEmpty())
	assert.Empty(t, merged.Sources)

	// A well-formed book with no levels is a valid contribution.
	empty := &domain.ExchangeBook{Exchange: "coinbase"}
	merged = Merge("BTC-USD", []*domain.ExchangeBook{empty}, 0)
	assert.True(t, merged.IsEmpty())
	assert.Equal(t, []string{"coinbase"}, merged.Sources)

	_, ok := merged.BestBid()
	assert.False(t, ok)
}

func TestMergeDepthLimitAppliesAfterSumming(t *testing.T) {
	a := &domain.ExchangeBook{Exchange: "a", Bids: levels("100", "1", "99", "1", "98", "1")}
	b := &domain.ExchangeBook{Exchange: "b", Bids: levels("100", "4", "97", "1")}

	merged := Merge("BTC-USD", []*domain.ExchangeBook{a, b}, 2)

	assertSideEqual(t, levels("100", "5", "99", "1"), merged.Bids, "top levels kept with summed quantity")
}

func TestMergePreservesCrossedBook(t *testing.T) {
	a := &domain.ExchangeBook{Exchange: "a", Bids: levels("102", "1")}
	b := &domain.ExchangeBook{Exchange: "b", Asks: levels("101", "2")}

	merged := Merge("BTC-USD", []*domain.ExchangeBook{a, b}, 0)

	assert.True(t, merged.Crossed(), "cross across sources must be surfaced, not repaired")
	assertSideEqual(t, levels("102", "1"), merged.Bids, "crossed bid untouched")
	assertSideEqual(t, levels("101", "2"), merged.Asks, "crossed ask untouched")

	spread, ok := merged.Spread()
	require.True(t, ok)
	assert.True(t, spread.IsNegative())
}
