package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// subscribeBuffer is the depth of the payload channel handed to subscribers.
// Slow consumers drop further behind inside go-redis's own buffer, not here.
const subscribeBuffer = 128

// SignalBus carries engine events (opportunities, allocations, emergencies)
// over Redis Pub/Sub. Delivery is fire-and-forget: subscribers that connect
// late miss earlier signals.
type SignalBus struct {
	raw *redis.Client
}

// NewSignalBus creates a SignalBus on the shared client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{raw: c.raw}
}

// Publish fans a payload out to every current subscriber of the channel.
func (b *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.raw.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a subscription and returns the payload channel. Cancelling
// ctx tears the subscription down and closes the channel.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	sub := b.raw.Subscribe(ctx, channel)

	// Wait for the subscription ack so a Publish immediately after this
	// call is not lost.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, subscribeBuffer)
	go b.pump(ctx, sub, out)
	return out, nil
}

func (b *SignalBus) pump(ctx context.Context, sub *redis.PubSub, out chan<- []byte) {
	defer close(out)
	defer sub.Close()

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
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
}
