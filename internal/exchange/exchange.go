// Package exchange contains the per-venue order-book sources. Each source
// owns an independent rate limiter and HTTP client, fetches one snapshot
// per call and normalizes the venue payload into the canonical model.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfold/obagg/internal/book"
	"github.com/quantfold/obagg/internal/domain"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxBodyBytes       = 16 << 20
	userAgent          = "obagg/1.0"
)

// Config carries the construction parameters shared by every source.
// Endpoint and Product fall back to the venue's production defaults; the
// Limiter is mandatory since every source must pace its own requests.
type Config struct {
	Endpoint string
	Product  string
	Depth    int // level count hint for venues that accept one
	Limiter  domain.Limiter
	Logger   *slog.Logger

	// HTTPClient overrides the default 30s-timeout client, mainly for
	// tests.
	HTTPClient *http.Client
}

func (c Config) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: defaultHTTPTimeout}
}

func (c Config) componentLogger(name string) *slog.Logger {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(
		slog.String("component", "exchange"),
		slog.String("exchange", name),
	)
}

// fetchJSON acquires a permit, issues the GET and returns the response
// body. Failures are classified with the domain fetch sentinels. The
// permit is spent once granted, whatever the outcome of the request it
// paid for.
func fetchJSON(ctx context.Context, client *http.Client, limiter domain.Limiter, name, url string) ([]byte, error) {
	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: acquire permit: %w", name, classify(err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w: %v", name, domain.ErrFetchTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request: %w", name, classify(err))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", name, classify(err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := payload
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return nil, fmt.Errorf("%s: HTTP %d: %s: %w", name, resp.StatusCode, snippet, domain.ErrFetchTransport)
	}
	return payload, nil
}

// classify maps low-level request failures onto the fetch taxonomy:
// anything caused by the deadline or cancellation is a timeout, the rest is
// transport.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", domain.ErrFetchTimeout, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("%w: %v", domain.ErrFetchTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrFetchTransport, err)
}

// parseLevel converts a price/quantity string pair into a level. ok is
// false for zero or negative quantities, which are dropped rather than
// stored. Unparseable or negative numbers are decode failures.
func parseLevel(price, qty string) (domain.PriceLevel, bool, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return domain.PriceLevel{}, false, fmt.Errorf("price %q: %w", price, err)
	}
	if p.IsNegative() {
		return domain.PriceLevel{}, false, fmt.Errorf("price %q is negative", price)
	}
	q, err := decimal.NewFromString(qty)
	if err != nil {
		return domain.PriceLevel{}, false, fmt.Errorf("quantity %q: %w", qty, err)
	}
	if !q.IsPositive() {
		return domain.PriceLevel{}, false, nil
	}
	return domain.PriceLevel{Price: p, Quantity: q}, true, nil
}

func parseSide(raw [][2]string) ([]domain.PriceLevel, error) {
	out := make([]domain.PriceLevel, 0, len(raw))
	for i, entry := range raw {
		lvl, ok, err := parseLevel(entry[0], entry[1])
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", i, err)
		}
		if !ok {
			continue
		}
		out = append(out, lvl)
	}
	return out, nil
}

// buildBook turns raw string levels into a canonical snapshot: decimal
// parsing, canonical sort per side, duplicate-price collapse.
func buildBook(exchange string, rawBids, rawAsks [][2]string, fetchedAt time.Time) (*domain.ExchangeBook, error) {
	bids, err := parseSide(rawBids)
	if err != nil {
		return nil, fmt.Errorf("%s: bids: %w: %v", exchange, domain.ErrFetchDecode, err)
	}
	asks, err := parseSide(rawAsks)
	if err != nil {
		return nil, fmt.Errorf("%s: asks: %w: %v", exchange, domain.ErrFetchDecode, err)
	}

	return &domain.ExchangeBook{
		Exchange:  exchange,
		Bids:      book.NormalizeSide(bids, book.BidOrdering),
		Asks:      book.NormalizeSide(asks, book.AskOrdering),
		FetchedAt: fetchedAt,
	}, nil
}
