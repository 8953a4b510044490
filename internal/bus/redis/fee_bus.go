package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/gaspilot/internal/domain"
)

// FeeBus implements domain.FeeBus using Redis Pub/Sub. Updates are ephemeral;
// a node that was down during a publish simply serves its next fetch.
type FeeBus struct {
	rdb *redis.Client
}

// NewFeeBus creates a FeeBus backed by the given Client.
func NewFeeBus(c *Client) *FeeBus {
	return &FeeBus{rdb: c.Underlying()}
}

// Publish sends a raw byte payload to a Redis Pub/Sub channel.
func (fb *FeeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := fb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe creates a Redis Pub/Sub subscription and returns a read-only
// channel emitting raw payloads. Channels containing glob wildcards become
// pattern subscriptions, which is how the hub bridge listens to every
// gaspilot topic at once. The subscription closes with the context, and the
// returned channel closes at that point as well.
func (fb *FeeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if hasPattern(channel) {
		pubsub = fb.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = fb.rdb.Subscribe(ctx, channel)
	}

	// Verify the subscription is established by receiving the confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// hasPattern returns true when the Redis channel includes glob-style
// wildcards, in which case PSubscribe must be used instead of Subscribe.
func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

// Compile-time interface check.
var _ domain.FeeBus = (*FeeBus)(nil)
