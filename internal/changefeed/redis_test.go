package changefeed

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/smartmark/internal/logger"
	"github.com/patric-chuzhbe/smartmark/internal/models"
)

func TestDecodeEvent(t *testing.T) {
	event, err := decodeEvent(`{"type":"INSERT","table":"bookmarks","user_id":"u1","bookmark_id":"b1"}`)
	require.NoError(t, err)
	assert.Equal(t, models.ChangeInsert, event.Type)
	assert.Equal(t, "u1", event.UserID)
	assert.Equal(t, "b1", event.BookmarkID)

	_, err = decodeEvent(`{"type":"INSERT"}`)
	assert.Error(t, err)

	_, err = decodeEvent(`not json`)
	assert.Error(t, err)
}

func TestRedisRelayRelaysIntoHub(t *testing.T) {
	hub := NewHub(4)
	relay := &RedisRelay{hub: hub}

	events, cancel := hub.Subscribe("u1")
	defer cancel()

	relay.relay(context.Background(), `{"type":"DELETE","user_id":"u1","bookmark_id":"b1"}`)
	relay.relay(context.Background(), `garbage`)

	select {
	case event := <-events:
		assert.Equal(t, models.ChangeDelete, event.Type)
	case <-time.After(time.Second):
		t.Fatal("event was not relayed")
	}

	select {
	case event := <-events:
		t.Fatalf("unexpected event %+v", event)
	default:
	}
}

func TestNewRedisRelayGivesUp(t *testing.T) {
	_, err := NewRedisRelay(context.Background(), RedisOptions{
		Addr:           "127.0.0.1:1",
		ConnectTimeout: 300 * time.Millisecond,
		RetryInterval:  50 * time.Millisecond,
		MaxWait:        100 * time.Millisecond,
		PingTimeout:    50 * time.Millisecond,
	}, NewHub(1))

	assert.Error(t, err)
}

func TestRedisRelayRunKeepsRetrying(t *testing.T) {
	require.NoError(t, logger.Init("error"))

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 20 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	relay := &RedisRelay{
		client:        client,
		channel:       DefaultRedisChannel,
		hub:           NewHub(1),
		retryInterval: 10 * time.Millisecond,
		maxWait:       20 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	startedAt := time.Now()
	assert.NoError(t, relay.Run(ctx), "Run only ends with its context")
	assert.GreaterOrEqual(t, time.Since(startedAt), 150*time.Millisecond, "A failed subscription is retried until the context ends")
}
