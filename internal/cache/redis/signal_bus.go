package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/quantfold/obagg/internal/domain"
)

// subscribeBuffer is the depth of the channel handed to subscribers. Bus
// traffic is state-carrying, so anything that overflows it is superseded by
// the next cycle anyway.
const subscribeBuffer = 128

// Bus implements domain.SignalBus over Redis Pub/Sub. Book updates travel on
// "ch:book:{pair}" and lifecycle events on "ch:status"; delivery is
// fire-and-forget.
type Bus struct {
	rdb *redis.Client
}

// NewBus wraps an existing client in a signal bus.
func NewBus(rdb *redis.Client) *Bus {
	return &Bus{rdb: rdb}
}

var _ domain.SignalBus = (*Bus)(nil)

// Publish sends a raw payload to one channel.
func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a subscription and returns the stream of raw payloads.
// Names containing glob wildcards ("ch:book:*") subscribe by pattern. The
// stream closes when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var sub *redis.PubSub
	if strings.ContainsAny(channel, "*?[") {
		sub = b.rdb.PSubscribe(ctx, channel)
	} else {
		sub = b.rdb.Subscribe(ctx, channel)
	}

	// Wait for the server to confirm the subscription so a bad channel or a
	// dead connection surfaces here instead of as silence later.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	// Closing the PubSub ends the range below, which closes out.
	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()

	out := make(chan []byte, subscribeBuffer)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
