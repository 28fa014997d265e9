package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/quantfold/obagg/internal/domain"
)

// BookCache implements domain.BookCache. Each cycle replaces the previous
// snapshot whole; there are no incremental updates.
//
// Key schema:
//
//	obagg:book:{pair}      - JSON-encoded AggregatedBook, expires after ttl
//	obagg:book:{pair}:bbo  - hash with "bid", "bid_qty", "ask", "ask_qty",
//	                         "cycle_id", "as_of"; kept for cheap polling by
//	                         other processes, same ttl
type BookCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewBookCache creates a BookCache on an existing client. ttl bounds how
// long a snapshot outlives the cycle that produced it.
func NewBookCache(rdb *redis.Client, ttl time.Duration) *BookCache {
	return &BookCache{rdb: rdb, ttl: ttl}
}

func bookKey(pair string) string { return "obagg:book:" + pair }
func bboKey(pair string) string  { return "obagg:book:" + pair + ":bbo" }

// SetBook atomically replaces the cached snapshot and its BBO hash. A side
// with no depth leaves its BBO fields absent rather than zero.
func (bc *BookCache) SetBook(ctx context.Context, book *domain.AggregatedBook) error {
	payload, err := json.Marshal(book)
	if err != nil {
		return fmt.Errorf("redis: marshal book %s: %w", book.Pair, err)
	}

	fields := map[string]any{
		"cycle_id": book.CycleID,
		"as_of":    book.AsOf.Format(time.RFC3339Nano),
	}
	if bid, ok := book.BestBid(); ok {
		fields["bid"] = bid.Price.String()
		fields["bid_qty"] = bid.Quantity.String()
	}
	if ask, ok := book.BestAsk(); ok {
		fields["ask"] = ask.Price.String()
		fields["ask_qty"] = ask.Quantity.String()
	}

	pipe := bc.rdb.TxPipeline()
	pipe.Set(ctx, bookKey(book.Pair), payload, bc.ttl)
	pipe.Del(ctx, bboKey(book.Pair))
	pipe.HSet(ctx, bboKey(book.Pair), fields)
	pipe.Expire(ctx, bboKey(book.Pair), bc.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set book %s: %w", book.Pair, err)
	}
	return nil
}

// GetBook returns the cached snapshot for pair, or domain.ErrNoBook when no
// snapshot exists or it has expired.
func (bc *BookCache) GetBook(ctx context.Context, pair string) (*domain.AggregatedBook, error) {
	raw, err := bc.rdb.Get(ctx, bookKey(pair)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNoBook
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get book %s: %w", pair, err)
	}

	var book domain.AggregatedBook
	if err := json.Unmarshal(raw, &book); err != nil {
		return nil, fmt.Errorf("redis: decode book %s: %w", pair, err)
	}
	return &book, nil
}

// Compile-time interface check.
var _ domain.BookCache = (*BookCache)(nil)
