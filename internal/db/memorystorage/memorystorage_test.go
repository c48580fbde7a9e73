package memorystorage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/smartmark/internal/db/storage"
	"github.com/patric-chuzhbe/smartmark/internal/models"
	"github.com/patric-chuzhbe/smartmark/internal/user"
)

func TestMemoryStorage(t *testing.T) {
	var theStorage storage.Storage
	theStorage, err := New()
	require.NoError(t, err)
	defer func() {
		require.NoError(t, theStorage.Close())
	}()

	ctx := context.Background()
	require.NoError(t, theStorage.Ping(ctx))

	usr, err := theStorage.UpsertUserByIdentity(ctx, user.Identity{Provider: "google", ProviderUserID: "1", Email: "a@b.c"}, nil)
	require.NoError(t, err)

	bookmark, err := theStorage.InsertBookmark(ctx, &models.Bookmark{Title: "Go", URL: "https://go.dev/", UserID: usr.ID}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, bookmark.ID)
	assert.False(t, bookmark.CreatedAt.IsZero())

	bookmarks, err := theStorage.GetBookmarksByOwner(ctx, usr.ID)
	require.NoError(t, err)
	assert.Len(t, bookmarks, 1)
}
