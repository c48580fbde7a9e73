package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/smartmark/internal/changefeed"
	"github.com/patric-chuzhbe/smartmark/internal/db/memorystorage"
	"github.com/patric-chuzhbe/smartmark/internal/mockstorage"
	"github.com/patric-chuzhbe/smartmark/internal/models"
	"github.com/patric-chuzhbe/smartmark/internal/urlnorm"
	"github.com/patric-chuzhbe/smartmark/internal/user"
)

func newMemoryService(t *testing.T) (*Service, *changefeed.Hub, *user.User) {
	t.Helper()

	db, err := memorystorage.New()
	require.NoError(t, err)

	usr, err := db.UpsertUserByIdentity(
		context.Background(),
		user.Identity{Provider: "google", ProviderUserID: "42", Email: "user@example.com"},
		nil,
	)
	require.NoError(t, err)

	hub := changefeed.NewHub(4)
	return New(db, hub), hub, usr
}

func receive(t *testing.T, events <-chan models.ChangeEvent) models.ChangeEvent {
	t.Helper()
	select {
	case event := <-events:
		return event
	case <-time.After(time.Second):
		t.Fatal("no change event")
		return models.ChangeEvent{}
	}
}

func TestAddBookmark(t *testing.T) {
	svc, hub, usr := newMemoryService(t)
	events, cancel := hub.Subscribe(usr.ID)
	defer cancel()

	bookmark, err := svc.AddBookmark(context.Background(), usr.ID, "  Example  ", "example.com")
	require.NoError(t, err)
	assert.Equal(t, "Example", bookmark.Title)
	assert.Equal(t, "https://example.com/", bookmark.URL)
	assert.Equal(t, usr.ID, bookmark.UserID)

	event := receive(t, events)
	assert.Equal(t, models.ChangeInsert, event.Type)
	assert.Equal(t, bookmark.ID, event.BookmarkID)

	bookmarks, err := svc.ListBookmarks(context.Background(), usr.ID)
	require.NoError(t, err)
	assert.Len(t, bookmarks, 1)
}

func TestAddBookmarkRejectsInvalidInput(t *testing.T) {
	svc, _, usr := newMemoryService(t)

	testCases := []struct {
		name     string
		title    string
		url      string
		expected error
	}{
		{name: "empty title", title: " ", url: "example.com", expected: urlnorm.ErrEmptyTitle},
		{name: "empty url", title: "x", url: "", expected: urlnorm.ErrEmptyURL},
		{name: "invalid url", title: "x", url: "not a url!!", expected: urlnorm.ErrInvalidURL},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := svc.AddBookmark(context.Background(), usr.ID, testCase.title, testCase.url)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.ErrorIs(t, err, testCase.expected)
		})
	}
}

func TestAddBookmarkForUnknownUser(t *testing.T) {
	svc, _, _ := newMemoryService(t)

	_, err := svc.AddBookmark(context.Background(), "ghost", "x", "example.com")
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}

func TestDeleteBookmark(t *testing.T) {
	svc, hub, usr := newMemoryService(t)

	bookmark, err := svc.AddBookmark(context.Background(), usr.ID, "Go", "go.dev")
	require.NoError(t, err)

	events, cancel := hub.Subscribe(usr.ID)
	defer cancel()

	err = svc.DeleteBookmark(context.Background(), "someone-else", bookmark.ID)
	assert.ErrorIs(t, err, models.ErrBookmarkNotFound)

	require.NoError(t, svc.DeleteBookmark(context.Background(), usr.ID, bookmark.ID))
	event := receive(t, events)
	assert.Equal(t, models.ChangeDelete, event.Type)

	err = svc.DeleteBookmark(context.Background(), usr.ID, bookmark.ID)
	assert.ErrorIs(t, err, models.ErrBookmarkNotFound)
}

func TestAddBookmarkStorageFailure(t *testing.T) {
	storage := &mockstorage.StorageMock{}
	storage.On("BeginTransaction").Return(nil, nil)
	storage.On("RollbackTransaction", mock.Anything).Return(nil)
	storage.On("GetUserByID", mock.Anything, "u1", mock.Anything).Return(&user.User{ID: "u1"}, nil)
	storage.On("InsertBookmark", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("boom"))

	svc := New(storage, changefeed.Nop{})

	_, err := svc.AddBookmark(context.Background(), "u1", "Go", "go.dev")
	assert.Error(t, err)
	storage.AssertNotCalled(t, "CommitTransaction", mock.Anything)
}

func TestGetInternalStats(t *testing.T) {
	storage := &mockstorage.StorageMock{
		OnGetNumberOfUsers:     func(context.Context) (int64, error) { return 3, nil },
		OnGetNumberOfBookmarks: func(context.Context) (int64, error) { return 10, nil },
	}

	stats, err := New(storage, changefeed.Nop{}).GetInternalStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.InternalStatsResponse{Bookmarks: 10, Users: 3}, stats)
}
