package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/quantfold/obagg/internal/domain"
)

// SourcesService defines the methods the sources handler requires from the
// service layer.
type SourcesService interface {
	LastRun() (*domain.AggregationCycle, bool)
}

// SourcesHandler reports the per-exchange outcome of the most recent
// aggregation attempt, successful or not.
type SourcesHandler struct {
	svc    SourcesService
	logger *slog.Logger
}

// NewSourcesHandler creates a SourcesHandler with the given service and logger.
func NewSourcesHandler(svc SourcesService, logger *slog.Logger) *SourcesHandler {
	return &SourcesHandler{
		svc:    svc,
		logger: logger.With(slog.String("handler", "sources")),
	}
}

// sourceReport is the wire form of one exchange's fetch outcome.
type sourceReport struct {
	Exchange  string `json:"exchange"`
	Success   bool   `json:"success"`
	Kind      string `json:"kind,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
	Bids      int    `json:"bids"`
	Asks      int    `json:"asks"`
}

// sourcesResponse wraps the per-source reports with cycle metadata.
type sourcesResponse struct {
	Sources     []sourceReport `json:"sources"`
	Degraded    bool           `json:"degraded"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
}

// ListSources returns the source reports of the last aggregation attempt.
// GET /api/sources
func (h *SourcesHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	cycle, ok := h.svc.LastRun()
	if !ok {
		respondError(w, http.StatusServiceUnavailable, "no aggregation cycle has run yet")
		return
	}

	reports := make([]sourceReport, 0, len(cycle.Reports))
	for _, rep := range cycle.Reports {
		reports = append(reports, sourceReport{
			Exchange:  rep.Exchange,
			Success:   rep.Success,
			Kind:      rep.Kind,
			Error:     rep.Error,
			LatencyMs: rep.Latency.Milliseconds(),
			Bids:      rep.Bids,
			Asks:      rep.Asks,
		})
	}

	respond(w, http.StatusOK, sourcesResponse{
		Sources:     reports,
		Degraded:    cycle.Degraded(),
		StartedAt:   cycle.StartedAt,
		CompletedAt: cycle.CompletedAt,
	})
}
