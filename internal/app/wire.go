package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quantfold/obagg/internal/aggregator"
	"github.com/quantfold/obagg/internal/cache/redis"
	"github.com/quantfold/obagg/internal/config"
	"github.com/quantfold/obagg/internal/domain"
	"github.com/quantfold/obagg/internal/exchange"
	"github.com/quantfold/obagg/internal/notify"
	"github.com/quantfold/obagg/internal/ratelimit"
	"github.com/quantfold/obagg/internal/service"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Aggregation
	Sources []domain.Source
	Engine  *aggregator.Engine
	Books   *service.BookService

	// Redis-backed infrastructure (nil unless redis.enabled)
	BookCache   domain.BookCache
	RateLimiter domain.RateLimiter
	SignalBus   domain.SignalBus

	// Notifications
	Notifier *notify.Notifier
}

// Wire builds every concrete dependency the configuration asks for. The
// returned cleanup releases them in reverse order and must run on shutdown;
// on error, everything built so far has already been released.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Exchange sources, each behind its own limiter ---
	sources, err := buildSources(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: %w", err)
	}
	deps.Sources = sources

	// --- Redis (optional: shared book cache, pub/sub bus, API rate limiter) ---
	if cfg.Redis.Enabled {
		rdb, err := redis.Dial(ctx, redis.Options{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLS:        cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = rdb.Close() })

		deps.BookCache = redis.NewBookCache(rdb, cfg.Redis.BookTTL.Duration)
		deps.RateLimiter = redis.NewAPILimiter(rdb)
		deps.SignalBus = redis.NewBus(rdb)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.Enabled {
		if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
			senders = append(senders, notify.NewTelegram(
				cfg.Notify.TelegramToken,
				cfg.Notify.TelegramChatID,
			))
		}
		if cfg.Notify.DiscordWebhookURL != "" {
			senders = append(senders, notify.NewDiscord(cfg.Notify.DiscordWebhookURL))
		}
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events(), logger)

	// --- Aggregation engine and book service ---
	engine, err := aggregator.New(aggregator.Config{
		Pair:         cfg.Aggregator.Pair,
		FetchTimeout: cfg.Aggregator.FetchTimeout.Duration,
		DepthLimit:   cfg.Aggregator.DepthLimit,
		MinSources:   cfg.Aggregator.MinSources,
	}, sources, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %w", err)
	}
	deps.Engine = engine

	deps.Books = service.NewBookService(
		cfg.Aggregator.Pair,
		engine,
		deps.BookCache,
		deps.SignalBus,
		deps.Notifier,
		logger,
	)

	return deps, cleanup, nil
}

// buildSources constructs one Source per enabled exchange. Limiter and source
// construction errors are fatal; a misconfigured rate limit must never fall
// back to unlimited fetching.
func buildSources(cfg *config.Config, logger *slog.Logger) ([]domain.Source, error) {
	venues := []struct {
		name string
		cfg  config.ExchangeConfig
		make func(exchange.Config) (domain.Source, error)
	}{
		{"coinbase", cfg.Exchanges.Coinbase, func(c exchange.Config) (domain.Source, error) { return exchange.NewCoinbase(c) }},
		{"gemini", cfg.Exchanges.Gemini, func(c exchange.Config) (domain.Source, error) { return exchange.NewGemini(c) }},
		{"kraken", cfg.Exchanges.Kraken, func(c exchange.Config) (domain.Source, error) { return exchange.NewKraken(c) }},
	}

	var sources []domain.Source
	for _, v := range venues {
		if !v.cfg.Enabled {
			continue
		}

		limiter, err := ratelimit.New(v.cfg.RateLimit, v.cfg.RateInterval.Duration)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", v.name, err)
		}

		src, err := v.make(exchange.Config{
			Endpoint: v.cfg.Endpoint,
			Product:  v.cfg.Product,
			Depth:    v.cfg.Depth,
			Limiter:  limiter,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", v.name, err)
		}
		sources = append(sources, src)
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("no exchanges enabled")
	}
	return sources, nil
}
