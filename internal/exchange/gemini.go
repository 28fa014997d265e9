package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"

	"github.com/quantfold/obagg/internal/domain"
)

const (
	geminiName            = "gemini"
	defaultGeminiEndpoint = "https://api.gemini.com"
	defaultGeminiProduct  = "btcusd"
)

// geminiLevel is one book entry: Gemini encodes every numeric field as a
// string.
type geminiLevel struct {
	Price     string `json:"price" validate:"required"`
	Amount    string `json:"amount" validate:"required"`
	Timestamp string `json:"timestamp"`
}

// geminiBook mirrors GET /v1/book/{symbol}.
type geminiBook struct {
	Bids []geminiLevel `json:"bids" validate:"required,dive"`
	Asks []geminiLevel `json:"asks" validate:"required,dive"`
}

// Gemini fetches the current order book from the Gemini REST API.
type Gemini struct {
	endpoint string
	product  string
	limiter  domain.Limiter
	client   *http.Client
	logger   *slog.Logger
	validate *validator.Validate
}

var _ domain.Source = (*Gemini)(nil)

// NewGemini builds the Gemini source.
func NewGemini(cfg Config) (*Gemini, error) {
	if cfg.Limiter == nil {
		return nil, fmt.Errorf("gemini: limiter is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultGeminiEndpoint
	}
	product := cfg.Product
	if product == "" {
		product = defaultGeminiProduct
	}

	return &Gemini{
		endpoint: strings.TrimRight(endpoint, "/"),
		product:  product,
		limiter:  cfg.Limiter,
		client:   cfg.client(),
		logger:   cfg.componentLogger(geminiName),
		validate: validator.New(),
	}, nil
}

// Name implements domain.Source.
func (g *Gemini) Name() string { return geminiName }

// Fetch implements domain.Source.
func (g *Gemini) Fetch(ctx context.Context) (*domain.ExchangeBook, error) {
	url := fmt.Sprintf("%s/v1/book/%s", g.endpoint, g.product)

	payload, err := fetchJSON(ctx, g.client, g.limiter, geminiName, url)
	if err != nil {
		return nil, err
	}

	var raw geminiBook
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("gemini: decode book: %w: %v", domain.ErrFetchDecode, err)
	}
	if err := g.validate.Struct(&raw); err != nil {
		return nil, fmt.Errorf("gemini: validate book: %w: %v", domain.ErrFetchDecode, err)
	}

	bids := make([][2]string, len(raw.Bids))
	for i, lvl := range raw.Bids {
		bids[i] = [2]string{lvl.Price, lvl.Amount}
	}
	asks := make([][2]string, len(raw.Asks))
	for i, lvl := range raw.Asks {
		asks[i] = [2]string{lvl.Price, lvl.Amount}
	}

	bk, err := buildBook(geminiName, bids, asks, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	g.logger.DebugContext(ctx, "book fetched",
		slog.Int("bids", len(bk.Bids)),
		slog.Int("asks", len(bk.Asks)),
	)
	return bk, nil
}
