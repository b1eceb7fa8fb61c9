package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/kre8/diagram-relay/internal/logging"
	backend "github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "diagram-relay:responses"

// Redis implements Publisher and Subscriber over Redis pub/sub.
type Redis struct {
	client  *backend.Client
	channel string
	logger  *slog.Logger
}

// Option configures a Redis change feed.
type Option func(*Redis)

// WithChannel sets the pub/sub channel name.
func WithChannel(channel string) Option {
	return func(r *Redis) {
		if channel != "" {
			r.channel = channel
		}
	}
}

// WithLogger sets the logger used for malformed payloads.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Redis) {
		r.logger = logger
	}
}

// NewRedis creates a Redis change feed.
func NewRedis(address, password string, db int, opts ...Option) *Redis {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisFromClient(rdb, opts...)
}

// NewRedisFromClient creates a Redis change feed from an existing client.
func NewRedisFromClient(client *backend.Client, opts ...Option) *Redis {
	r := &Redis{
		client:  client,
		channel: DefaultChannel,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to reach redis: %w", err)
	}
	return nil
}

// Publish announces a new response for requestID.
func (r *Redis) Publish(ctx context.Context, requestID int64) error {
	payload := strconv.FormatInt(requestID, 10)
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish response signal: %w", err)
	}
	return nil
}

// Subscribe listens on the channel until ctx is done. It returns once the
// subscription is confirmed by the server.
func (r *Redis) Subscribe(ctx context.Context) (<-chan int64, error) {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}

	out := make(chan int64, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				id, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					r.logger.Warn("ignoring malformed response signal", "payload", msg.Payload, "error", err)
					continue
				}
				select {
				case out <- id:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
