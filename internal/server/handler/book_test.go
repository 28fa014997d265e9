package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/obagg/internal/domain"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func aggBook() *domain.AggregatedBook {
	return &domain.AggregatedBook{
		Pair:    "BTC-USD",
		CycleID: "cycle-1",
		Bids: []domain.PriceLevel{
			{Price: d("100"), Quantity: d("2")},
			{Price: d("99"), Quantity: d("6")},
		},
		Asks: []domain.PriceLevel{
			{Price: d("101"), Quantity: d("1")},
			{Price: d("102"), Quantity: d("10")},
		},
		Sources: []string{"coinbase", "gemini"},
		AsOf:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

type stubBooks struct {
	pair  string
	cycle *domain.AggregationCycle
}

func (s *stubBooks) Pair() string { return s.pair }

func (s *stubBooks) Latest() (*domain.AggregationCycle, bool) {
	return s.cycle, s.cycle != nil
}

type stubCache struct {
	book       *domain.AggregatedBook
	askedPairs []string
}

func (c *stubCache) SetBook(ctx context.Context, book *domain.AggregatedBook) error {
	return nil
}

func (c *stubCache) GetBook(ctx context.Context, pair string) (*domain.AggregatedBook, error) {
	c.askedPairs = append(c.askedPairs, pair)
	if c.book == nil {
		return nil, domain.ErrNoBook
	}
	return c.book, nil
}

type wireLevel struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

func TestGetBookBeforeFirstCycle(t *testing.T) {
	h := NewBookHandler(&stubBooks{pair: "BTC-USD"}, nil, testLogger())

	rec := httptest.NewRecorder()
	h.GetBook(rec, httptest.NewRequest(http.MethodGet, "/api/book", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "no aggregated book yet")
}

func TestGetBookFullDepthByDefault(t *testing.T) {
	svc := &stubBooks{pair: "BTC-USD", cycle: &domain.AggregationCycle{Book: aggBook()}}
	h := NewBookHandler(svc, nil, testLogger())

	rec := httptest.NewRecorder()
	h.GetBook(rec, httptest.NewRequest(http.MethodGet, "/api/book", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var got struct {
		Pair    string      `json:"pair"`
		CycleID string      `json:"cycle_id"`
		Bids    []wireLevel `json:"bids"`
		Asks    []wireLevel `json:"asks"`
		Sources []string    `json:"sources"`
		Crossed bool        `json:"crossed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "BTC-USD", got.Pair)
	assert.Equal(t, "cycle-1", got.CycleID)
	assert.Len(t, got.Bids, 2)
	assert.Len(t, got.Asks, 2)
	assert.Equal(t, []string{"coinbase", "gemini"}, got.Sources)
	assert.False(t, got.Crossed)
}

func TestGetBookDepthTruncation(t *testing.T) {
	svc := &stubBooks{pair: "BTC-USD", cycle: &domain.AggregationCycle{Book: aggBook()}}
	h := NewBookHandler(svc, nil, testLogger())

	rec := httptest.NewRecorder()
	h.GetBook(rec, httptest.NewRequest(http.MethodGet, "/api/book?depth=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Bids []wireLevel `json:"bids"`
		Asks []wireLevel `json:"asks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Bids, 1)
	require.Len(t, got.Asks, 1)
	assert.Equal(t, "100", got.Bids[0].Price)
	assert.Equal(t, "101", got.Asks[0].Price)
}

func TestGetBookCacheFallback(t *testing.T) {
	cache := &stubCache{book: aggBook()}
	h := NewBookHandler(&stubBooks{pair: "BTC-USD"}, cache, testLogger())

	rec := httptest.NewRecorder()
	h.GetBook(rec, httptest.NewRequest(http.MethodGet, "/api/book", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"BTC-USD"}, cache.askedPairs)
	assert.Contains(t, rec.Body.String(), `"cycle_id":"cycle-1"`)
}

func TestGetBBO(t *testing.T) {
	svc := &stubBooks{pair: "BTC-USD", cycle: &domain.AggregationCycle{Book: aggBook()}}
	h := NewBookHandler(svc, nil, testLogger())

	rec := httptest.NewRecorder()
	h.GetBBO(rec, httptest.NewRequest(http.MethodGet, "/api/book/bbo", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Pair    string     `json:"pair"`
		Bid     *wireLevel `json:"bid"`
		Ask     *wireLevel `json:"ask"`
		Spread  *string    `json:"spread"`
		Crossed bool       `json:"crossed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotNil(t, got.Bid)
	assert.Equal(t, "100", got.Bid.Price)
	assert.Equal(t, "2", got.Bid.Quantity)
	require.NotNil(t, got.Ask)
	assert.Equal(t, "101", got.Ask.Price)
	require.NotNil(t, got.Spread)
	assert.Equal(t, "1", *got.Spread)
	assert.False(t, got.Crossed)
}

func TestGetBBOOmitsEmptyAskSide(t *testing.T) {
	bk := aggBook()
	bk.Asks = nil
	svc := &stubBooks{pair: "BTC-USD", cycle: &domain.AggregationCycle{Book: bk}}
	h := NewBookHandler(svc, nil, testLogger())

	rec := httptest.NewRecorder()
	h.GetBBO(rec, httptest.NewRequest(http.MethodGet, "/api/book/bbo", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"bid"`)
	assert.NotContains(t, body, `"ask"`)
	assert.NotContains(t, body, `"spread"`)
}

func TestGetBBOCrossedBook(t *testing.T) {
	bk := aggBook()
	bk.Bids[0].Price = d("103")
	svc := &stubBooks{pair: "BTC-USD", cycle: &domain.AggregationCycle{Book: bk}}
	h := NewBookHandler(svc, nil, testLogger())

	rec := httptest.NewRecorder()
	h.GetBBO(rec, httptest.NewRequest(http.MethodGet, "/api/book/bbo", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"crossed":true`)
	assert.Contains(t, rec.Body.String(), `"spread":"-2"`)
}
