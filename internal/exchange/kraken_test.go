package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/obagg/internal/domain"
)

const krakenFixture = `{
  "error": [],
  "result": {
    "XXBTZUSD": {
      "asks": [["67102.1","1.234",1716663113],["67103.9","0.5",1716663114]],
      "bids": [["67100.0","2.0",1716663110],["67101.2","0.75",1716663111]]
    }
  }
}`

func TestKrakenFetchNormalizes(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.String()
		_, _ = w.Write([]byte(krakenFixture))
	}))
	defer srv.Close()

	src, err := NewKraken(Config{Endpoint: srv.URL, Product: "XBTUSD", Depth: 25, Limiter: testLimiter(t)})
	require.NoError(t, err)
	assert.Equal(t, "kraken", src.Name())

	bk, err := src.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "/0/public/Depth?pair=XBTUSD&count=25", gotQuery)
	assert.Equal(t, "kraken", bk.Exchange)

	require.Len(t, bk.Bids, 2)
	assert.True(t, bk.Bids[0].Price.Equal(decimal.RequireFromString("67101.2")),
		"bids re-sorted descending")
	assert.True(t, bk.Bids[0].Quantity.Equal(decimal.RequireFromString("0.75")))
	require.Len(t, bk.Asks, 2)
	assert.True(t, bk.Asks[0].Price.Equal(decimal.RequireFromString("67102.1")))
}

func TestKrakenFetchAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": ["EQuery:Unknown asset pair"], "result": {}}`))
	}))
	defer srv.Close()

	src, err := NewKraken(Config{Endpoint: srv.URL, Limiter: testLimiter(t)})
	require.NoError(t, err)

	_, err = src.Fetch(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFetchDecode)
	assert.Contains(t, err.Error(), "Unknown asset pair")
}

func TestKrakenFetchAmbiguousResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
  "error": [],
  "result": {
    "XXBTZUSD": {"bids": [], "asks": []},
    "XETHZUSD": {"bids": [], "asks": []}
  }
}`))
	}))
	defer srv.Close()

	src, err := NewKraken(Config{Endpoint: srv.URL, Limiter: testLimiter(t)})
	require.NoError(t, err)

	_, err = src.Fetch(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFetchDecode)
}

func TestKrakenFetchEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": [], "result": {}}`))
	}))
	defer srv.Close()

	src, err := NewKraken(Config{Endpoint: srv.URL, Limiter: testLimiter(t)})
	require.NoError(t, err)

	_, err = src.Fetch(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFetchDecode)
}

func TestKrakenDefaults(t *testing.T) {
	src, err := NewKraken(Config{Limiter: testLimiter(t)})
	require.NoError(t, err)
	assert.Equal(t, defaultKrakenEndpoint, src.endpoint)
	assert.Equal(t, defaultKrakenProduct, src.product)
	assert.Equal(t, defaultKrakenDepth, src.depth)
}
