package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/quantfold/obagg/internal/domain"
	"github.com/quantfold/obagg/internal/report"
	"github.com/quantfold/obagg/internal/server"
	"github.com/quantfold/obagg/internal/server/handler"
	"github.com/quantfold/obagg/internal/server/ws"
)

// QuoteMode runs a single aggregation cycle, writes the consolidated book
// summary with the requested quotes to stdout, and exits. A cycle that
// produces no book at all is fatal; partial failures degrade the report.
func (a *App) QuoteMode(ctx context.Context, deps *Dependencies) error {
	qty, err := decimal.NewFromString(a.cfg.Quote.DefaultQuantity)
	if err != nil {
		return fmt.Errorf("quote mode: quantity %q is not a number", a.cfg.Quote.DefaultQuantity)
	}
	if !qty.IsPositive() {
		return fmt.Errorf("quote mode: quantity must be positive, got %s", qty)
	}

	cycle, err := deps.Books.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("quote mode: %w", err)
	}

	var results []*domain.QuoteResult
	switch strings.ToLower(a.cfg.Quote.DefaultSide) {
	case "buy":
		q, err := deps.Books.Quote(domain.QuoteBuy, qty)
		if err != nil {
			return fmt.Errorf("quote mode: %w", err)
		}
		results = append(results, q)
	case "sell":
		q, err := deps.Books.Quote(domain.QuoteSell, qty)
		if err != nil {
			return fmt.Errorf("quote mode: %w", err)
		}
		results = append(results, q)
	default: // both
		buy, sell, err := deps.Books.QuoteBoth(qty)
		if err != nil {
			return fmt.Errorf("quote mode: %w", err)
		}
		results = append(results, buy, sell)
	}

	report.WriteQuote(os.Stdout, cycle, results...)
	return nil
}

// WatchMode refreshes the book on the configured interval and prints one
// summary line per cycle to stdout. Failed cycles are reported on stderr and
// retried on the next tick; the previously published book stays in place.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Aggregator.RefreshInterval.Duration
	a.logger.InfoContext(ctx, "starting watch mode",
		slog.Duration("interval", interval),
	)

	runOnce := func() {
		cycle, err := deps.Books.Refresh(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			fmt.Fprintf(os.Stderr, "%s refresh failed: %v\n",
				time.Now().UTC().Format("15:04:05"), err)
			return
		}
		fmt.Println(report.WatchLine(cycle))
	}

	runOnce()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			runOnce()
		}
	}
}

// ServeMode runs the background refresher, the HTTP API server, and (when
// Redis is wired) the WebSocket hub until the context is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	startedAt := time.Now().UTC()

	// The WebSocket hub requires the Redis signal bus.
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			Pair:      a.cfg.Aggregator.Pair,
			StartedAt: startedAt,
		})
		g.Go(func() error {
			if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("ws hub: %w", err)
			}
			return nil
		})
	}

	// Background refresher. Failures keep the previous book published and
	// are retried on the next tick.
	g.Go(func() error {
		interval := a.cfg.Aggregator.RefreshInterval.Duration
		refresh := func() {
			if _, err := deps.Books.Refresh(ctx); err != nil && ctx.Err() == nil {
				a.logger.WarnContext(ctx, "refresh failed",
					slog.String("error", err.Error()),
				)
			}
		}

		refresh()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				refresh()
			}
		}
	})

	// HTTP API server.
	srv := server.NewServer(server.Config{
		Host:         a.cfg.Server.Host,
		Port:         a.cfg.Server.Port,
		APIKey:       a.cfg.Server.APIKey,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		ReadTimeout:  a.cfg.Server.ReadTimeout.Duration,
		WriteTimeout: a.cfg.Server.WriteTimeout.Duration,
		RateLimit:    a.cfg.Server.RateLimit,
		RateWindow:   a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(a.cfg.Aggregator.Pair, startedAt, a.logger),
		Book:    handler.NewBookHandler(deps.Books, deps.BookCache, a.logger),
		Quote:   handler.NewQuoteHandler(deps.Books, a.logger),
		Sources: handler.NewSourcesHandler(deps.Books, a.logger),
		Refresh: handler.NewRefreshHandler(deps.Books, a.logger),
	}, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		timeout := a.cfg.Server.ShutdownTimeout.Duration
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		a.logger.Info("HTTP server shutting down")
		return srv.Shutdown(shutCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("serve mode: %w", err)
	}
	return nil
}
