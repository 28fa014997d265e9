// Package redis implements the optional shared-state layer using go-redis/v9:
// the latest-book cache, the pub/sub signal bus, and the inbound API rate
// limiter. The aggregator works without it; serve mode wires it in when
// enabled.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// dialTimeout bounds the connectivity probe in Dial, independent of the
// caller's context.
const dialTimeout = 5 * time.Second

// Options holds connection parameters for Dial.
type Options struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLS        bool
}

// Dial opens a client and verifies connectivity with a ping before returning
// it. The caller owns the client and must Close it.
func Dial(ctx context.Context, opts Options) (*redis.Client, error) {
	ro := &redis.Options{
		Addr:       opts.Addr,
		Password:   opts.Password,
		DB:         opts.DB,
		PoolSize:   opts.PoolSize,
		MaxRetries: opts.MaxRetries,
	}
	if opts.TLS {
		ro.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(ro)

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: dial %s: %w", opts.Addr, err)
	}
	return rdb, nil
}
