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
	coinbaseName            = "coinbase"
	defaultCoinbaseEndpoint = "https://api.exchange.coinbase.com"
	defaultCoinbaseProduct  = "BTC-USD"
)

// coinbaseLevel is one entry of the level-2 book: a three-element array of
// price string, size string and resting order count.
type coinbaseLevel struct {
	Price string
	Size  string
}

func (l *coinbaseLevel) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) < 2 {
		return fmt.Errorf("level has %d elements, need price and size", len(parts))
	}
	if err := json.Unmarshal(parts[0], &l.Price); err != nil {
		return fmt.Errorf("price: %w", err)
	}
	if err := json.Unmarshal(parts[1], &l.Size); err != nil {
		return fmt.Errorf("size: %w", err)
	}
	return nil
}

// coinbaseBook mirrors GET /products/{product}/book?level=2.
type coinbaseBook struct {
	Bids     []coinbaseLevel `json:"bids" validate:"required"`
	Asks     []coinbaseLevel `json:"asks" validate:"required"`
	Sequence int64           `json:"sequence"`
}

// Coinbase fetches the aggregated level-2 book from Coinbase Exchange.
type Coinbase struct {
	endpoint string
	product  string
	limiter  domain.Limiter
	client   *http.Client
	logger   *slog.Logger
	validate *validator.Validate
}

var _ domain.Source = (*Coinbase)(nil)

// NewCoinbase builds the Coinbase source.
func NewCoinbase(cfg Config) (*Coinbase, error) {
	if cfg.Limiter == nil {
		return nil, fmt.Errorf("coinbase: limiter is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultCoinbaseEndpoint
	}
	product := cfg.Product
	if product == "" {
		product = defaultCoinbaseProduct
	}

	return &Coinbase{
		endpoint: strings.TrimRight(endpoint, "/"),
		product:  product,
		limiter:  cfg.Limiter,
		client:   cfg.client(),
		logger:   cfg.componentLogger(coinbaseName),
		validate: validator.New(),
	}, nil
}

// Name implements domain.Source.
func (c *Coinbase) Name() string { return coinbaseName }

// Fetch implements domain.Source.
func (c *Coinbase) Fetch(ctx context.Context) (*domain.ExchangeBook, error) {
	url := fmt.Sprintf("%s/products/%s/book?level=2", c.endpoint, c.product)

	payload, err := fetchJSON(ctx, c.client, c.limiter, coinbaseName, url)
	if err != nil {
		return nil, err
	}

	var raw coinbaseBook
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("coinbase: decode book: %w: %v", domain.ErrFetchDecode, err)
	}
	if err := c.validate.Struct(&raw); err != nil {
		return nil, fmt.Errorf("coinbase: validate book: %w: %v", domain.ErrFetchDecode, err)
	}

	bids := make([][2]string, len(raw.Bids))
	for i, lvl := range raw.Bids {
		bids[i] = [2]string{lvl.Price, lvl.Size}
	}
	asks := make([][2]string, len(raw.Asks))
	for i, lvl := range raw.Asks {
		asks[i] = [2]string{lvl.Price, lvl.Size}
	}

	bk, err := buildBook(coinbaseName, bids, asks, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "book fetched",
		slog.Int("bids", len(bk.Bids)),
		slog.Int("asks", len(bk.Asks)),
		slog.Int64("sequence", raw.Sequence),
	)
	return bk, nil
}
