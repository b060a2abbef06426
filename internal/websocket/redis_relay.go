package websocket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// relayMessage is what travels on the Redis channel
type relayMessage struct {
	Origin  string          `json:"origin"`
	Target  Target          `json:"target"`
	Payload json.RawMessage `json:"payload"`
}

// RedisRelay fans hub messages out to every server instance sharing a Redis channel
type RedisRelay struct {
	client  *redis.Client
	channel string
	origin  string
	log     *zap.Logger
}

// NewRedisRelay creates a relay. origin identifies the local hub so its own messages are skipped.
func NewRedisRelay(client *redis.Client, channel, origin string, log *zap.Logger) *RedisRelay {
	return &RedisRelay{client: client, channel: channel, origin: origin, log: log}
}

// Publish sends an encoded hub message to the other instances
func (r *RedisRelay) Publish(ctx context.Context, target Target, payload []byte) error {
	raw, err := json.Marshal(relayMessage{Origin: r.origin, Target: target, Payload: payload})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, raw).Err()
}

// Start subscribes to the channel and hands remote messages to deliver until ctx ends.
// It returns once the subscription is confirmed.
func (r *RedisRelay) Start(ctx context.Context, deliver func(Target, []byte)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var m relayMessage
				if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
					r.log.Warn("invalid relay message", zap.Error(err))
					continue
				}
				if m.Origin == r.origin {
					continue
				}
				deliver(m.Target, m.Payload)
			}
		}
	}()
	return nil
}

// AttachRelay wires hub to Redis in both directions
func AttachRelay(ctx context.Context, hub *Hub, client *redis.Client, channel string) (*RedisRelay, error) {
	relay := NewRedisRelay(client, channel, hub.ID(), hub.log.Named("relay"))
	if err := relay.Start(ctx, func(t Target, payload []byte) { hub.Deliver(t, payload) }); err != nil {
		return nil, err
	}
	hub.SetRelay(relay)
	return relay, nil
}
