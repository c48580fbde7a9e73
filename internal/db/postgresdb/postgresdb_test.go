package postgresdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/smartmark/internal/changefeed"
	"github.com/patric-chuzhbe/smartmark/internal/db/storage"
	"github.com/patric-chuzhbe/smartmark/internal/models"
	"github.com/patric-chuzhbe/smartmark/internal/user"
)

const (
	databaseDSN   = "" // host=localhost user=smartmark password=smartmark dbname=smartmark sslmode=disable
	migrationsDir = "../../../migrations"
)

var _ storage.Storage = (*PostgresDB)(nil)

func TestDecodeNotification(t *testing.T) {
	event, err := decodeNotification(
		`{"type":"INSERT","table":"bookmarks","user_id":"6f1c","bookmark_id":"b1","at":"2025-03-01T10:00:00.123456+00:00"}`,
	)
	require.NoError(t, err)
	assert.Equal(t, models.ChangeInsert, event.Type)
	assert.Equal(t, models.BookmarksTable, event.Table)
	assert.Equal(t, "6f1c", event.UserID)
	assert.Equal(t, 2025, event.At.Year())

	_, err = decodeNotification(`{"type":"DELETE"}`)
	assert.Error(t, err)
}

func TestPostgresDB(t *testing.T) {
	if databaseDSN == "" {
		t.Skip("databaseDSN is not configured")
	}

	ctx := context.Background()
	db, err := New(ctx, databaseDSN, 10*time.Second, migrationsDir, WithDBPreReset(true))
	require.NoError(t, err)
	defer func() {
		require.NoError(t, db.Close())
	}()

	require.NoError(t, db.Ping(ctx))

	hub := changefeed.NewHub(8)
	listenerCtx, stopListener := context.WithCancel(ctx)
	defer stopListener()
	go func() {
		_ = NewListener(databaseDSN, hub).Run(listenerCtx)
	}()

	alice, err := db.UpsertUserByIdentity(ctx, user.Identity{Provider: "google", ProviderUserID: "a", Email: "a@example.com"}, nil)
	require.NoError(t, err)
	again, err := db.UpsertUserByIdentity(ctx, user.Identity{Provider: "google", ProviderUserID: "a", Email: "new@example.com"}, nil)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, again.ID)
	assert.Equal(t, "new@example.com", again.Email)

	bob, err := db.UpsertUserByIdentity(ctx, user.Identity{Provider: "google", ProviderUserID: "b", Email: "b@example.com"}, nil)
	require.NoError(t, err)

	events, cancel := hub.Subscribe(alice.ID)
	defer cancel()
	// Give the listener a moment to issue LISTEN.
	time.Sleep(500 * time.Millisecond)

	transaction, err := db.BeginTransaction()
	require.NoError(t, err)
	first, err := db.InsertBookmark(ctx, &models.Bookmark{Title: "Go", URL: "https://go.dev/", UserID: alice.ID}, transaction)
	require.NoError(t, err)
	require.NoError(t, db.CommitTransaction(transaction))

	second, err := db.InsertBookmark(ctx, &models.Bookmark{Title: "GitHub", URL: "https://github.com/", UserID: alice.ID}, nil)
	require.NoError(t, err)

	select {
	case event := <-events:
		assert.Equal(t, models.ChangeInsert, event.Type)
		assert.Equal(t, alice.ID, event.UserID)
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification received")
	}

	bookmarks, err := db.GetBookmarksByOwner(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, bookmarks, 2)
	assert.Equal(t, second.ID, bookmarks[0].ID)
	assert.Equal(t, first.ID, bookmarks[1].ID)

	deleted, err := db.DeleteBookmark(ctx, bob.ID, first.ID, nil)
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = db.DeleteBookmark(ctx, alice.ID, first.ID, nil)
	require.NoError(t, err)
	assert.True(t, deleted)

	count, err := db.GetNumberOfBookmarks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	users, err := db.GetNumberOfUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), users)

	missing, err := db.GetUserByID(ctx, "00000000-0000-0000-0000-000000000000", nil)
	require.NoError(t, err)
	assert.Empty(t, missing.ID)

	require.NoError(t, db.RevokeSessions(ctx, alice.ID))
	revoked, err := db.GetUserByID(ctx, alice.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, alice.SessionVersion+1, revoked.SessionVersion)
}
