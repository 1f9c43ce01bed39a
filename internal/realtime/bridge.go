package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// envelope wraps a message with its target channel and origin instance for
// transport over the redis broadcast channel.
type envelope struct {
	Origin  string  `json:"origin"`
	Channel string  `json:"channel"`
	Message Message `json:"message"`
}

// RedisBridge fans pushes out across service instances via redis pub/sub.
// Local delivery happens first; instances subscribed to the broadcast channel
// re-deliver to their own registries, skipping their own publications.
// Publish failures are logged and swallowed: redis being down degrades
// delivery to local-only, it never fails the triggering operation.
type RedisBridge struct {
	registry    *Registry
	client      *redis.Client
	channelName string
	instanceID  string
	timeout     time.Duration
	logger      *zap.Logger
}

// NewRedisBridge builds the bridge. A nil client yields local-only delivery.
func NewRedisBridge(registry *Registry, client *redis.Client, channelName string, timeout time.Duration, logger *zap.Logger) *RedisBridge {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RedisBridge{
		registry:    registry,
		client:      client,
		channelName: channelName,
		instanceID:  uuid.NewString(),
		timeout:     timeout,
		logger:      logger,
	}
}

// Push delivers locally and publishes to the broadcast channel.
func (b *RedisBridge) Push(channel string, msg Message) int {
	delivered := b.registry.Push(channel, msg)

	if b.client == nil {
		return delivered
	}
	payload, err := json.Marshal(envelope{
		Origin:  b.instanceID,
		Channel: channel,
		Message: msg,
	})
	if err != nil {
		b.logger.Warn("marshal realtime envelope", zap.Error(err))
		return delivered
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if err := b.client.Publish(ctx, b.channelName, payload).Err(); err != nil {
		b.logger.Warn("publish realtime message", zap.Error(err),
			zap.String("channel", channel),
			zap.String("event_id", msg.EventID))
	}
	return delivered
}

// Run consumes the broadcast channel until the context is cancelled,
// re-delivering messages published by other instances.
func (b *RedisBridge) Run(ctx context.Context) {
	if b.client == nil {
		return
	}
	pubsub := b.client.Subscribe(ctx, b.channelName)
	defer pubsub.Close() //nolint:errcheck

	for {
		select {
		case <-ctx.Done():
			return
		case received, ok := <-pubsub.Channel():
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(received.Payload), &env); err != nil {
				b.logger.Warn("decode realtime envelope", zap.Error(err))
				continue
			}
			if env.Origin == b.instanceID {
				continue
			}
			b.registry.Push(env.Channel, env.Message)
		}
	}
}
