package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler answers liveness probes.
type HealthHandler struct {
	pair      string
	startedAt time.Time
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler reporting for the given pair.
func NewHealthHandler(pair string, startedAt time.Time, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		pair:      pair,
		startedAt: startedAt,
		logger:    logger.With(slog.String("handler", "health")),
	}
}

type healthBody struct {
	Status        string `json:"status"`
	Pair          string `json:"pair"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Timestamp     string `json:"timestamp"`
}

// HealthCheck reports that the process is alive and which pair it serves.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, healthBody{
		Status:        "ok",
		Pair:          h.pair,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}
