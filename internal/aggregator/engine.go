// Package aggregator runs the fan-out/fan-in aggregation cycle: every
// configured source is fetched concurrently under one shared deadline and
// the surviving snapshots are merged into a single consolidated book.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantfold/obagg/internal/book"
	"github.com/quantfold/obagg/internal/domain"
)

// Config sizes an Engine.
type Config struct {
	Pair         string
	FetchTimeout time.Duration
	DepthLimit   int
	MinSources   int
}

// Engine coordinates aggregation cycles over a fixed set of sources. It is
// stateless between cycles; every Run produces a fresh book.
type Engine struct {
	pair       string
	timeout    time.Duration
	depthLimit int
	minSources int
	sources    []domain.Source
	logger     *slog.Logger
}

// New builds an Engine over the given sources.
func New(cfg Config, sources []domain.Source, logger *slog.Logger) (*Engine, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("aggregator: at least one source is required")
	}
	if cfg.FetchTimeout <= 0 {
		return nil, fmt.Errorf("aggregator: fetch timeout must be positive, got %s", cfg.FetchTimeout)
	}
	minSources := cfg.MinSources
	if minSources <= 0 {
		minSources = 1
	}
	if minSources > len(sources) {
		return nil, fmt.Errorf("aggregator: min sources %d exceeds configured sources %d", minSources, len(sources))
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		pair:       cfg.Pair,
		timeout:    cfg.FetchTimeout,
		depthLimit: cfg.DepthLimit,
		minSources: minSources,
		sources:    sources,
		logger: logger.With(
			slog.String("component", "aggregator"),
			slog.String("pair", cfg.Pair),
		),
	}, nil
}

// Sources returns the names of the configured sources.
func (e *Engine) Sources() []string {
	names := make([]string, 0, len(e.sources))
	for _, src := range e.sources {
		names = append(names, src.Name())
	}
	sort.Strings(names)
	return names
}

type fetchResult struct {
	book   *domain.ExchangeBook
	report domain.SourceReport
	err    error
}

// Run executes one aggregation cycle: concurrent fetches under the shared
// deadline, then a single-threaded merge of whatever succeeded. Per-source
// failures degrade the cycle; only a total wipeout (or falling below the
// configured source minimum) fails it.
func (e *Engine) Run(ctx context.Context) (*domain.AggregationCycle, error) {
	started := time.Now().UTC()
	cycleID := uuid.NewString()
	logger := e.logger.With(slog.String("cycle_id", cycleID))

	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	results := make(chan fetchResult, len(e.sources))
	var wg sync.WaitGroup
	for _, src := range e.sources {
		wg.Add(1)
		go func(src domain.Source) {
			defer wg.Done()
			results <- e.fetchOne(cctx, logger, src)
		}(src)
	}
	wg.Wait()
	close(results)

	var (
		books   []*domain.ExchangeBook
		reports []domain.SourceReport
		causes  []error
	)
	for res := range results {
		reports = append(reports, res.report)
		if res.err != nil {
			causes = append(causes, res.err)
			continue
		}
		books = append(books, res.book)
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Exchange < reports[j].Exchange
	})

	cycle := &domain.AggregationCycle{
		Reports:   reports,
		StartedAt: started,
	}

	if len(books) == 0 {
		cycle.CompletedAt = time.Now().UTC()
		logger.Error("aggregation cycle failed",
			slog.Int("sources", len(e.sources)),
			slog.Duration("duration", cycle.CompletedAt.Sub(started)),
		)
		return cycle, fmt.Errorf("aggregator: %w: %w", domain.ErrAllSourcesFailed, errors.Join(causes...))
	}
	if len(books) < e.minSources {
		cycle.CompletedAt = time.Now().UTC()
		return cycle, fmt.Errorf("aggregator: only %d of %d sources succeeded, need %d: %w",
			len(books), len(e.sources), e.minSources, errors.Join(causes...))
	}

	merged := book.Merge(e.pair, books, e.depthLimit)
	merged.CycleID = cycleID
	merged.AsOf = time.Now().UTC()
	cycle.Book = merged
	cycle.CompletedAt = merged.AsOf

	if merged.Crossed() {
		bid, _ := merged.BestBid()
		ask, _ := merged.BestAsk()
		logger.Warn("merged book is crossed",
			slog.String("best_bid", bid.Price.String()),
			slog.String("best_ask", ask.Price.String()),
		)
	}

	logger.Info("aggregation cycle complete",
		slog.Int("contributing", len(books)),
		slog.Int("failed", len(e.sources)-len(books)),
		slog.Int("bids", len(merged.Bids)),
		slog.Int("asks", len(merged.Asks)),
		slog.Duration("duration", cycle.CompletedAt.Sub(started)),
	)
	return cycle, nil
}

func (e *Engine) fetchOne(ctx context.Context, logger *slog.Logger, src domain.Source) fetchResult {
	start := time.Now()
	bk, err := src.Fetch(ctx)
	latency := time.Since(start)

	rep := domain.SourceReport{Exchange: src.Name(), Latency: latency}
	if err != nil {
		rep.Kind = domain.FetchKind(err)
		rep.Error = err.Error()
		logger.Warn("source fetch failed",
			slog.String("exchange", src.Name()),
			slog.String("kind", rep.Kind),
			slog.Duration("latency", latency),
			slog.String("error", err.Error()),
		)
		return fetchResult{report: rep, err: err}
	}

	rep.Success = true
	rep.Bids = len(bk.Bids)
	rep.Asks = len(bk.Asks)
	return fetchResult{book: bk, report: rep}
}
