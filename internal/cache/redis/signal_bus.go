package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/clobcore/internal/domain"
)

// tradeChannel is the Pub/Sub channel trade executions fan out on.
const tradeChannel = "trades"

// SignalBus implements domain.SignalBus using Redis Pub/Sub, so feed
// consumers in other processes see executions without polling Postgres.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// PublishTrade broadcasts an executed trade to all subscribers.
func (sb *SignalBus) PublishTrade(ctx context.Context, t domain.Trade) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("redis: marshal trade %s: %w", t.ID, err)
	}
	if err := sb.rdb.Publish(ctx, tradeChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish trade %s: %w", t.ID, err)
	}
	return nil
}

// SubscribeTrades creates a Pub/Sub subscription and returns a read-only
// channel of trades plus a cancel function. The channel is closed when the
// context is cancelled or cancel is called. Malformed payloads are dropped.
func (sb *SignalBus) SubscribeTrades(ctx context.Context) (<-chan domain.Trade, func(), error) {
	pubsub := sb.rdb.Subscribe(ctx, tradeChannel)

	// Verify the subscription is established by receiving the confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("redis: subscribe %s: %w", tradeChannel, err)
	}

	out := make(chan domain.Trade, 128)
	done := make(chan struct{})
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var t domain.Trade
				if err := json.Unmarshal([]byte(msg.Payload), &t); err != nil {
					continue
				}
				select {
				case out <- t:
				case <-ctx.Done():
					return
				case <-done:
					return
				}
			}
		}
	}()

	var once bool
	cancel := func() {
		if once {
			return
		}
		once = true
		close(done)
	}
	return out, cancel, nil
}

// Compile-time interface check.
var _ domain.SignalBus = (*SignalBus)(nil)
