package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/obagg/internal/domain"
)

type stubSources struct {
	cycle *domain.AggregationCycle
}

func (s *stubSources) LastRun() (*domain.AggregationCycle, bool) {
	return s.cycle, s.cycle != nil
}

func TestListSourcesBeforeFirstRun(t *testing.T) {
	h := NewSourcesHandler(&stubSources{}, testLogger())

	rec := httptest.NewRecorder()
	h.ListSources(rec, httptest.NewRequest(http.MethodGet, "/api/sources", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "no aggregation cycle has run yet")
}

func TestListSourcesReportsFailures(t *testing.T) {
	cycle := &domain.AggregationCycle{
		Book: aggBook(),
		Reports: []domain.SourceReport{
			{Exchange: "coinbase", Success: true, Latency: 120 * time.Millisecond, Bids: 40, Asks: 40},
			{Exchange: "gemini", Kind: "timeout", Error: "gemini: request: fetch timed out", Latency: 2 * time.Second},
		},
		StartedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		CompletedAt: time.Date(2025, 6, 1, 12, 0, 2, 0, time.UTC),
	}
	h := NewSourcesHandler(&stubSources{cycle: cycle}, testLogger())

	rec := httptest.NewRecorder()
	h.ListSources(rec, httptest.NewRequest(http.MethodGet, "/api/sources", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Sources []struct {
			Exchange  string `json:"exchange"`
			Success   bool   `json:"success"`
			Kind      string `json:"kind"`
			Error     string `json:"error"`
			LatencyMs int64  `json:"latency_ms"`
			Bids      int    `json:"bids"`
			Asks      int    `json:"asks"`
		} `json:"sources"`
		Degraded bool `json:"degraded"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Sources, 2)
	assert.True(t, got.Sources[0].Success)
	assert.Equal(t, int64(120), got.Sources[0].LatencyMs)
	assert.Equal(t, 40, got.Sources[0].Bids)
	assert.False(t, got.Sources[1].Success)
	assert.Equal(t, "timeout", got.Sources[1].Kind)
	assert.Equal(t, int64(2000), got.Sources[1].LatencyMs)
	assert.True(t, got.Degraded)
}

func TestListSourcesFailedCycleHasNoSuccessFlag(t *testing.T) {
	cycle := &domain.AggregationCycle{
		Reports: []domain.SourceReport{
			{Exchange: "coinbase", Kind: "transport", Error: "coinbase: connection refused"},
		},
	}
	h := NewSourcesHandler(&stubSources{cycle: cycle}, testLogger())

	rec := httptest.NewRecorder()
	h.ListSources(rec, httptest.NewRequest(http.MethodGet, "/api/sources", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
	// A cycle with no book is failed, not degraded.
	assert.Contains(t, rec.Body.String(), `"degraded":false`)
}
