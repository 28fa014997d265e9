package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/quantfold/obagg/internal/domain"
)

// QuoteService defines the methods the quote handler requires from the
// service layer.
type QuoteService interface {
	Quote(side domain.QuoteSide, target decimal.Decimal) (*domain.QuoteResult, error)
}

// QuoteHandler serves volume-weighted quote queries against the current
// aggregated book.
type QuoteHandler struct {
	svc    QuoteService
	logger *slog.Logger
}

// NewQuoteHandler creates a QuoteHandler with the given service and logger.
func NewQuoteHandler(svc QuoteService, logger *slog.Logger) *QuoteHandler {
	return &QuoteHandler{
		svc:    svc,
		logger: logger.With(slog.String("handler", "quote")),
	}
}

// quoteResponse is the wire form of a quote. The price fields are omitted
// when nothing could be filled; they are meaningless then and must not be
// rendered as zeros.
type quoteResponse struct {
	Side        string           `json:"side"`
	Pair        string           `json:"pair"`
	Target      decimal.Decimal  `json:"target_quantity"`
	Achievable  decimal.Decimal  `json:"achievable_quantity"`
	VWAP        *decimal.Decimal `json:"volume_weighted_price,omitempty"`
	WorstPrice  *decimal.Decimal `json:"worst_price,omitempty"`
	TotalCost   *decimal.Decimal `json:"total_cost,omitempty"`
	FullyFilled bool             `json:"fully_filled"`
	LevelsUsed  int              `json:"levels_used"`
}

// bothResponse pairs the two sides of one quote query.
type bothResponse struct {
	Buy  quoteResponse `json:"buy"`
	Sell quoteResponse `json:"sell"`
}

// GetQuote prices a target quantity against the current book.
// GET /api/quote?side=buy&qty=1.5 with side one of buy, sell or both.
func (h *QuoteHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	qtyStr := q.Get("qty")
	if qtyStr == "" {
		respondError(w, http.StatusBadRequest, "missing qty parameter")
		return
	}
	qty, err := decimal.NewFromString(qtyStr)
	if err != nil {
		respondError(w, http.StatusBadRequest, "qty is not a number")
		return
	}

	side := strings.ToLower(q.Get("side"))
	if side == "both" {
		buy, err := h.svc.Quote(domain.QuoteBuy, qty)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		sell, err := h.svc.Quote(domain.QuoteSell, qty)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		respond(w, http.StatusOK, bothResponse{
			Buy:  quoteToResponse(buy),
			Sell: quoteToResponse(sell),
		})
		return
	}

	res, err := h.svc.Quote(domain.QuoteSide(side), qty)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, quoteToResponse(res))
}

// fail maps quote errors onto status codes shared by both query forms.
func (h *QuoteHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidSide):
		respondError(w, http.StatusBadRequest, "side must be buy, sell or both")
	case errors.Is(err, domain.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, "qty must be positive")
	case errors.Is(err, domain.ErrNoBook):
		respondError(w, http.StatusServiceUnavailable, "no aggregated book yet")
	default:
		h.logger.ErrorContext(r.Context(), "handler: quote failed",
			slog.String("error", err.Error()),
		)
		respondError(w, http.StatusInternalServerError, "failed to compute quote")
	}
}

func quoteToResponse(res *domain.QuoteResult) quoteResponse {
	out := quoteResponse{
		Side:        string(res.Side),
		Pair:        res.Pair,
		Target:      res.TargetQuantity,
		Achievable:  res.AchievableQuantity,
		FullyFilled: res.FullyFilled,
		LevelsUsed:  res.LevelsUsed,
	}
	if !res.Unfillable() {
		vwap, worst, cost := res.VolumeWeightedPrice, res.WorstPrice, res.TotalCost
		out.VWAP = &vwap
		out.WorstPrice = &worst
		out.TotalCost = &cost
	}
	return out
}
