package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/obagg/internal/book"
	"github.com/quantfold/obagg/internal/domain"
)

// bookQuotes prices requests against a fixed aggregated book, mirroring what
// the book service does with its published cycle.
type bookQuotes struct {
	book *domain.AggregatedBook
	err  error
}

func (s *bookQuotes) Quote(side domain.QuoteSide, target decimal.Decimal) (*domain.QuoteResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return book.Quote(s.book, side, target)
}

func getQuote(t *testing.T, svc QuoteService, query string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewQuoteHandler(svc, testLogger())
	rec := httptest.NewRecorder()
	h.GetQuote(rec, httptest.NewRequest(http.MethodGet, "/api/quote"+query, nil))
	return rec
}

type quoteBody struct {
	Side        string  `json:"side"`
	Pair        string  `json:"pair"`
	Target      string  `json:"target_quantity"`
	Achievable  string  `json:"achievable_quantity"`
	VWAP        *string `json:"volume_weighted_price"`
	WorstPrice  *string `json:"worst_price"`
	TotalCost   *string `json:"total_cost"`
	FullyFilled bool    `json:"fully_filled"`
	LevelsUsed  int     `json:"levels_used"`
}

func TestGetQuoteMissingQty(t *testing.T) {
	rec := getQuote(t, &bookQuotes{book: aggBook()}, "?side=buy")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing qty")
}

func TestGetQuoteMalformedQty(t *testing.T) {
	rec := getQuote(t, &bookQuotes{book: aggBook()}, "?side=buy&qty=abc")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "qty is not a number")
}

func TestGetQuoteRejectsUnknownSide(t *testing.T) {
	rec := getQuote(t, &bookQuotes{book: aggBook()}, "?side=hold&qty=1")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "side must be buy, sell or both")
}

func TestGetQuoteRejectsNonPositiveQty(t *testing.T) {
	rec := getQuote(t, &bookQuotes{book: aggBook()}, "?side=buy&qty=0")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "qty must be positive")
}

func TestGetQuoteNoBook(t *testing.T) {
	svc := &bookQuotes{err: fmt.Errorf("book_service: quote: %w", domain.ErrNoBook)}
	rec := getQuote(t, svc, "?side=buy&qty=1")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "no aggregated book yet")
}

func TestGetQuoteFullFill(t *testing.T) {
	rec := getQuote(t, &bookQuotes{book: aggBook()}, "?side=buy&qty=4")
	require.Equal(t, http.StatusOK, rec.Code)

	var got quoteBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "buy", got.Side)
	assert.Equal(t, "BTC-USD", got.Pair)
	assert.Equal(t, "4", got.Target)
	assert.Equal(t, "4", got.Achievable)
	require.NotNil(t, got.VWAP)
	assert.Equal(t, "101.75", *got.VWAP)
	require.NotNil(t, got.WorstPrice)
	assert.Equal(t, "102", *got.WorstPrice)
	require.NotNil(t, got.TotalCost)
	assert.Equal(t, "407", *got.TotalCost)
	assert.True(t, got.FullyFilled)
	assert.Equal(t, 2, got.LevelsUsed)
}

func TestGetQuoteSellSide(t *testing.T) {
	rec := getQuote(t, &bookQuotes{book: aggBook()}, "?side=sell&qty=4")
	require.Equal(t, http.StatusOK, rec.Code)

	var got quoteBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "sell", got.Side)
	assert.Equal(t, "4", got.Achievable)
	require.NotNil(t, got.VWAP)
	assert.Equal(t, "99.5", *got.VWAP)
	require.NotNil(t, got.TotalCost)
	assert.Equal(t, "398", *got.TotalCost)
	assert.True(t, got.FullyFilled)
}

func TestGetQuoteBothSides(t *testing.T) {
	rec := getQuote(t, &bookQuotes{book: aggBook()}, "?side=both&qty=4")
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Buy  quoteBody `json:"buy"`
		Sell quoteBody `json:"sell"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "buy", got.Buy.Side)
	require.NotNil(t, got.Buy.VWAP)
	assert.Equal(t, "101.75", *got.Buy.VWAP)
	assert.Equal(t, "sell", got.Sell.Side)
	require.NotNil(t, got.Sell.VWAP)
	assert.Equal(t, "99.5", *got.Sell.VWAP)
}

func TestGetQuotePartialFill(t *testing.T) {
	rec := getQuote(t, &bookQuotes{book: aggBook()}, "?side=buy&qty=20")
	require.Equal(t, http.StatusOK, rec.Code)

	var got quoteBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "20", got.Target)
	assert.Equal(t, "11", got.Achievable)
	assert.False(t, got.FullyFilled)
	require.NotNil(t, got.TotalCost)
	assert.Equal(t, "1121", *got.TotalCost)
	require.NotNil(t, got.VWAP)
	require.NotNil(t, got.WorstPrice)
	assert.Equal(t, "102", *got.WorstPrice)
}

func TestGetQuoteUnfillableOmitsPrices(t *testing.T) {
	bk := aggBook()
	bk.Asks = nil
	rec := getQuote(t, &bookQuotes{book: bk}, "?side=buy&qty=5")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.NotContains(t, body, "volume_weighted_price")
	assert.NotContains(t, body, "worst_price")
	assert.NotContains(t, body, "total_cost")

	var got quoteBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "0", got.Achievable)
	assert.False(t, got.FullyFilled)
	assert.Zero(t, got.LevelsUsed)
}
