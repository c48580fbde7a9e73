package postgresdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/patric-chuzhbe/smartmark/internal/logger"
	"github.com/patric-chuzhbe/smartmark/internal/models"
)

// ChangesChannel is the NOTIFY channel written by the bookmarks trigger.
const ChangesChannel = "bookmark_changes"

type eventPublisher interface {
	Publish(ctx context.Context, event models.ChangeEvent) error
}

// Listener holds a dedicated connection in LISTEN mode and forwards every
// bookmark notification to a publisher.
type Listener struct {
	databaseDSN   string
	channel       string
	publisher     eventPublisher
	retryInterval time.Duration
	maxWait       time.Duration
}

func NewListener(databaseDSN string, publisher eventPublisher) *Listener {
	return &Listener{
		databaseDSN:   databaseDSN,
		channel:       ChangesChannel,
		publisher:     publisher,
		retryInterval: 500 * time.Millisecond,
		maxWait:       10 * time.Second,
	}
}

// Run listens until ctx is done, reconnecting with exponential backoff
// whenever the connection drops.
func (l *Listener) Run(ctx context.Context) error {
	wait := l.retryInterval
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}

		logger.Log.Warnw("bookmark change listener disconnected, reconnecting",
			"channel", l.channel,
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
		if wait > l.maxWait {
			wait = l.maxWait
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.databaseDSN)
	if err != nil {
		return fmt.Errorf("in internal/db/postgresdb/listener.go/listen(): error while `pgx.Connect()` calling: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pq.QuoteIdentifier(l.channel)); err != nil {
		return fmt.Errorf("in internal/db/postgresdb/listener.go/listen(): error while `conn.Exec()` calling: %w", err)
	}

	logger.Log.Infow("listening for bookmark changes", "channel", l.channel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}

		event, err := decodeNotification(notification.Payload)
		if err != nil {
			logger.Log.Debugw("skipping malformed notification", "payload", notification.Payload, "err", err)
			continue
		}

		if err := l.publisher.Publish(ctx, event); err != nil {
			logger.Log.Debugw("error while publishing a change event", "err", err)
		}
	}
}

func decodeNotification(payload string) (models.ChangeEvent, error) {
	var event models.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return event, err
	}
	if event.UserID == "" {
		return event, errors.New("notification without user_id")
	}

	return event, nil
}
