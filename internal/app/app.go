// Package app provides the top-level application lifecycle for the order
// book aggregator. It wires together all dependencies (exchange sources,
// rate limiters, the aggregation engine, caches, and notifications) and runs
// the configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quantfold/obagg/internal/config"
)

// App ties the configuration to a running mode and tracks the cleanup
// functions accumulated while wiring.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New builds an App around a validated configuration.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, selects the
// operating mode, and blocks until the mode finishes or the context is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting aggregator",
		slog.String("mode", a.cfg.Mode),
		slog.String("pair", a.cfg.Aggregator.Pair),
		slog.Any("exchanges", a.cfg.Exchanges.EnabledNames()),
	)
	a.logger.DebugContext(ctx, "effective configuration",
		slog.Any("config", a.cfg.Redacted()))

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(a.cfg.Mode) {
	case "quote":
		return a.QuoteMode(ctx, deps)
	case "watch":
		return a.WatchMode(ctx, deps)
	case "serve":
		return a.ServeMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close releases resources in reverse wiring order. Calling it again after
// the first time is a no-op.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
