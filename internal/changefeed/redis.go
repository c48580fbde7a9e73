package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/patric-chuzhbe/smartmark/internal/logger"
	"github.com/patric-chuzhbe/smartmark/internal/models"
)

// DefaultRedisChannel is the pub/sub channel shared by all replicas.
const DefaultRedisChannel = "smartmark:bookmark_changes"

// RedisOptions configures the Redis connection and its retry policy.
type RedisOptions struct {
	Addr           string
	Password       string
	DB             int
	Channel        string
	ConnectTimeout time.Duration // total time allowed for connection attempts
	RetryInterval  time.Duration // first wait between attempts, doubled each time
	MaxWait        time.Duration
	PingTimeout    time.Duration
}

func (o *RedisOptions) applyDefaults() {
	if o.Channel == "" {
		o.Channel = DefaultRedisChannel
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 30 * time.Second
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 500 * time.Millisecond
	}
	if o.MaxWait <= 0 {
		o.MaxWait = 5 * time.Second
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = 2 * time.Second
	}
}

// RedisRelay publishes change events to a Redis channel and relays every
// event received on that channel into a local Hub. With it, a change made
// through one replica reaches the subscribers connected to any replica.
type RedisRelay struct {
	client        *redis.Client
	channel       string
	hub           *Hub
	retryInterval time.Duration
	maxWait       time.Duration
}

// NewRedisRelay connects to Redis, retrying with exponential backoff until
// opts.ConnectTimeout runs out or ctx ends.
func NewRedisRelay(ctx context.Context, opts RedisOptions, hub *Hub) (*RedisRelay, error) {
	opts.applyDefaults()

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := connectWithRetry(ctx, client, opts); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisRelay{
		client:        client,
		channel:       opts.Channel,
		hub:           hub,
		retryInterval: opts.RetryInterval,
		maxWait:       opts.MaxWait,
	}, nil
}

func connectWithRetry(ctx context.Context, client *redis.Client, opts RedisOptions) error {
	ctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	logger.Log.Infow("connecting to redis", "addr", opts.Addr, "timeout", opts.ConnectTimeout)

	attempt := 0
	wait := opts.RetryInterval
	for {
		attempt++

		pingCtx, pingCancel := context.WithTimeout(ctx, opts.PingTimeout)
		err := client.Ping(pingCtx).Err()
		pingCancel()
		if err == nil {
			logger.Log.Infow("connected to redis", "addr", opts.Addr, "attempts", attempt)
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf(
				"in internal/changefeed/redis.go/connectWithRetry(): redis unavailable at %s after %d attempts: %w",
				opts.Addr,
				attempt,
				err,
			)
		case <-timer.C:
			logger.Log.Warnw("redis connection failed, retrying",
				"addr", opts.Addr,
				"attempt", attempt,
				"next_retry_in", wait,
				"err", err,
			)
			wait *= 2
			if wait > opts.MaxWait {
				wait = opts.MaxWait
			}
		}
	}
}

// Publish sends the event to every replica, this one included.
func (r *RedisRelay) Publish(ctx context.Context, event models.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("in internal/changefeed/redis.go/Publish(): error while `json.Marshal()` calling: %w", err)
	}

	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("in internal/changefeed/redis.go/Publish(): error while `client.Publish()` calling: %w", err)
	}

	return nil
}

var errSubscriptionClosed = errors.New("redis subscription closed")

// Run relays channel messages into the hub until ctx is done, subscribing
// again with exponential backoff whenever the subscription fails.
func (r *RedisRelay) Run(ctx context.Context) error {
	wait := r.retryInterval
	for {
		err := r.subscribe(ctx)
		if ctx.Err() != nil {
			return nil
		}

		logger.Log.Warnw("redis change relay disconnected, resubscribing",
			"channel", r.channel,
			"next_retry_in", wait,
			"err", err,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		wait *= 2
		if wait > r.maxWait {
			wait = r.maxWait
		}
	}
}

func (r *RedisRelay) subscribe(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("in internal/changefeed/redis.go/subscribe(): error while `pubsub.Receive()` calling: %w", err)
	}

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return errSubscriptionClosed
			}
			r.relay(ctx, msg.Payload)
		}
	}
}

func (r *RedisRelay) relay(ctx context.Context, payload string) {
	event, err := decodeEvent(payload)
	if err != nil {
		logger.Log.Debugw("skipping malformed change event", "payload", payload, "err", err)
		return
	}

	_ = r.hub.Publish(ctx, event)
}

func decodeEvent(payload string) (models.ChangeEvent, error) {
	var event models.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return event, err
	}
	if event.UserID == "" {
		return event, fmt.Errorf("change event without user_id")
	}

	return event, nil
}

// Close releases the Redis connection pool.
func (r *RedisRelay) Close() error {
	return r.client.Close()
}
