package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/quantfold/obagg/internal/domain"
)

const (
	krakenName            = "kraken"
	defaultKrakenEndpoint = "https://api.kraken.com"
	defaultKrakenProduct  = "XBTUSD"
	defaultKrakenDepth    = 100
)

// krakenLevel is one depth entry: a price string, a volume string and a
// unix timestamp, packed into a JSON array.
type krakenLevel struct {
	Price  string
	Volume string
}

func (l *krakenLevel) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) < 2 {
		return fmt.Errorf("level has %d elements, need price and volume", len(parts))
	}
	if err := json.Unmarshal(parts[0], &l.Price); err != nil {
		return fmt.Errorf("price: %w", err)
	}
	if err := json.Unmarshal(parts[1], &l.Volume); err != nil {
		return fmt.Errorf("volume: %w", err)
	}
	return nil
}

type krakenBookResult struct {
	Bids []krakenLevel `json:"bids"`
	Asks []krakenLevel `json:"asks"`
}

// krakenBook mirrors GET /0/public/Depth. The result is keyed by Kraken's
// own alias for the requested pair, so it is decoded as a map and exactly
// one entry is expected.
type krakenBook struct {
	Error  []string                    `json:"error"`
	Result map[string]krakenBookResult `json:"result"`
}

// Kraken fetches the public depth snapshot from the Kraken REST API.
type Kraken struct {
	endpoint string
	product  string
	depth    int
	limiter  domain.Limiter
	client   *http.Client
	logger   *slog.Logger
}

var _ domain.Source = (*Kraken)(nil)

// NewKraken builds the Kraken source.
func NewKraken(cfg Config) (*Kraken, error) {
	if cfg.Limiter == nil {
		return nil, fmt.Errorf("kraken: limiter is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultKrakenEndpoint
	}
	product := cfg.Product
	if product == "" {
		product = defaultKrakenProduct
	}
	depth := cfg.Depth
	if depth <= 0 {
		depth = defaultKrakenDepth
	}

	return &Kraken{
		endpoint: strings.TrimRight(endpoint, "/"),
		product:  product,
		depth:    depth,
		limiter:  cfg.Limiter,
		client:   cfg.client(),
		logger:   cfg.componentLogger(krakenName),
	}, nil
}

// Name implements domain.Source.
func (k *Kraken) Name() string { return krakenName }

// Fetch implements domain.Source.
func (k *Kraken) Fetch(ctx context.Context) (*domain.ExchangeBook, error) {
	u := fmt.Sprintf("%s/0/public/Depth?pair=%s&count=%d",
		k.endpoint, url.QueryEscape(k.product), k.depth)

	payload, err := fetchJSON(ctx, k.client, k.limiter, krakenName, u)
	if err != nil {
		return nil, err
	}

	var raw krakenBook
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("kraken: decode depth: %w: %v", domain.ErrFetchDecode, err)
	}
	if len(raw.Error) > 0 {
		return nil, fmt.Errorf("kraken: api error %q: %w", strings.Join(raw.Error, "; "), domain.ErrFetchDecode)
	}
	if len(raw.Result) != 1 {
		return nil, fmt.Errorf("kraken: expected one pair in result, got %d: %w", len(raw.Result), domain.ErrFetchDecode)
	}

	var result krakenBookResult
	for _, res := range raw.Result {
		result = res
	}

	bids := make([][2]string, len(result.Bids))
	for i, lvl := range result.Bids {
		bids[i] = [2]string{lvl.Price, lvl.Volume}
	}
	asks := make([][2]string, len(result.Asks))
	for i, lvl := range result.Asks {
		asks[i] = [2]string{lvl.Price, lvl.Volume}
	}

	bk, err := buildBook(krakenName, bids, asks, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	k.logger.DebugContext(ctx, "book fetched",
		slog.Int("bids", len(bk.Bids)),
		slog.Int("asks", len(bk.Asks)),
	)
	return bk, nil
}
