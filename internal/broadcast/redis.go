package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisPrefix is prepended to channel names on the Redis side.
const RedisPrefix = "tts:"

type envelope struct {
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload"`
}

// RedisRelay mirrors local publishes onto Redis and replays events published
// by other instances into the local broadcaster.
type RedisRelay struct {
	client   *redis.Client
	local    Publisher
	origin   string
	channels []string
	logger   *log.Logger
}

// NewRedisRelay connects to addr and verifies the connection. channels are
// the local channel names to relay.
func NewRedisRelay(addr string, local Publisher, channels []string, logger *log.Logger) (*RedisRelay, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRelay(client, local, channels, logger), nil
}

func newRelay(client *redis.Client, local Publisher, channels []string, logger *log.Logger) *RedisRelay {
	if logger == nil {
		logger = log.Default()
	}
	return &RedisRelay{
		client:   client,
		local:    local,
		origin:   uuid.NewString(),
		channels: channels,
		logger:   logger,
	}
}

// Origin identifies this instance in relayed envelopes.
func (r *RedisRelay) Origin() string {
	return r.origin
}

// Relay publishes payload to the Redis side of channel.
func (r *RedisRelay) Relay(ctx context.Context, channel string, payload []byte) error {
	msg, err := json.Marshal(envelope{Origin: r.origin, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to encode relay envelope: %w", err)
	}
	if err := r.client.Publish(ctx, RedisPrefix+channel, msg).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// Run subscribes to every relayed channel and forwards foreign events until
// ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	names := make([]string, len(r.channels))
	for i, ch := range r.channels {
		names[i] = RedisPrefix + ch
	}

	pubsub := r.client.Subscribe(ctx, names...)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to redis: %w", err)
	}
	r.logger.Info("Redis listener started", "channels", names)

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			r.handle(msg.Channel, msg.Payload)
		}
	}
}

// handle replays one Redis message locally, skipping our own publishes.
func (r *RedisRelay) handle(redisChannel, raw string) {
	channel, ok := strings.CutPrefix(redisChannel, RedisPrefix)
	if !ok {
		return
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		r.logger.Warn("Dropping malformed relay message", "channel", channel, "error", err)
		return
	}
	if env.Origin == r.origin {
		return
	}

	n := r.local.Publish(channel, env.Payload)
	r.logger.Debug("Relayed event", "channel", channel, "origin", env.Origin, "clients", n)
}

// Close releases the Redis connection.
func (r *RedisRelay) Close() error {
	return r.client.Close()
}
