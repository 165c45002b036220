// Package bus relays signaling frames between gateway instances.
package bus

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/avorobev/peertalk/internal/core"
)

const (
	gatewayChannelPrefix = "signal.gw."
	broadcastChannel     = "signal.broadcast"
)

// wire wraps a frame with its publishing gateway so broadcast subscribers can
// skip their own messages (the publisher already delivered locally).
type wire struct {
	Origin string `json:"origin"`
	Frame  []byte `json:"frame"`
}

// RedisBus fans frames out over Redis pub/sub. Each gateway subscribes to its
// own channel plus the shared broadcast channel. Delivery is at-most-once,
// matching the fire-and-forget routing tier it carries.
type RedisBus struct {
	rdb    *redis.Client
	origin string
	pubsub *redis.PubSub
}

func NewRedisBus(rdb *redis.Client, gatewayID string) *RedisBus {
	return &RedisBus{rdb: rdb, origin: gatewayID}
}

func (b *RedisBus) publish(ctx context.Context, channel string, f core.Frame) error {
	raw, err := json.Marshal(wire{Origin: b.origin, Frame: f})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channel, raw).Err()
}

func (b *RedisBus) Publish(ctx context.Context, gatewayID string, f core.Frame) error {
	return b.publish(ctx, gatewayChannelPrefix+gatewayID, f)
}

func (b *RedisBus) PublishBroadcast(ctx context.Context, f core.Frame) error {
	return b.publish(ctx, broadcastChannel, f)
}

func (b *RedisBus) Subscribe(ctx context.Context, gatewayID string, fn func(core.Frame)) error {
	b.pubsub = b.rdb.Subscribe(ctx, gatewayChannelPrefix+gatewayID, broadcastChannel)
	// Wait for the subscription to be confirmed so no frame published after
	// Subscribe returns can be missed.
	if _, err := b.pubsub.Receive(ctx); err != nil {
		return err
	}

	go func() {
		ch := b.pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					log.Info().Str("module", "bus").Msg("pubsub channel closed")
					return
				}
				var w wire
				if err := json.Unmarshal([]byte(msg.Payload), &w); err != nil {
					log.Error().Err(err).Str("module", "bus").Msg("bad bus message")
					continue
				}
				if w.Origin == b.origin {
					continue
				}
				fn(core.Frame(w.Frame))
			}
		}
	}()
	return nil
}

func (b *RedisBus) Close() error {
	if b.pubsub != nil {
		return b.pubsub.Close()
	}
	return nil
}

var _ core.EnvelopeBus = (*RedisBus)(nil)
