package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/quantfold/obagg/internal/domain"
)

// RefreshService defines the methods the refresh handler requires from the
// service layer.
type RefreshService interface {
	Refresh(ctx context.Context) (*domain.AggregationCycle, error)
}

// RefreshHandler triggers an aggregation cycle outside the regular refresh
// schedule.
type RefreshHandler struct {
	svc    RefreshService
	logger *slog.Logger
}

// NewRefreshHandler creates a RefreshHandler with the given service and logger.
func NewRefreshHandler(svc RefreshService, logger *slog.Logger) *RefreshHandler {
	return &RefreshHandler{
		svc:    svc,
		logger: logger.With(slog.String("handler", "refresh")),
	}
}

// refreshResponse summarizes the cycle that the trigger produced.
type refreshResponse struct {
	CycleID  string   `json:"cycle_id"`
	Sources  []string `json:"sources"`
	Bids     int      `json:"bids"`
	Asks     int      `json:"asks"`
	Degraded bool     `json:"degraded"`
	Crossed  bool     `json:"crossed"`
}

// TriggerRefresh runs one aggregation cycle now and reports its outcome.
// POST /api/refresh
func (h *RefreshHandler) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	cycle, err := h.svc.Refresh(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrAllSourcesFailed) {
			respondError(w, http.StatusBadGateway, "all sources failed")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: refresh failed",
			slog.String("error", err.Error()),
		)
		respondError(w, http.StatusInternalServerError, "refresh failed")
		return
	}

	respond(w, http.StatusOK, refreshResponse{
		CycleID:  cycle.Book.CycleID,
		Sources:  cycle.Book.Sources,
		Bids:     len(cycle.Book.Bids),
		Asks:     len(cycle.Book.Asks),
		Degraded: cycle.Degraded(),
		Crossed:  cycle.Book.Crossed(),
	})
}
