// Package mockstorage provides a testify-based mock implementation
// of the storage interface used by the service, auth and router packages.
package mockstorage

import (
	"context"
	"database/sql"

	"github.com/stretchr/testify/mock"

	"github.com/patric-chuzhbe/smartmark/internal/models"
	"github.com/patric-chuzhbe/smartmark/internal/user"
)

// StorageMock is a testify mock of storage.Storage.
type StorageMock struct {
	mock.Mock

	// OnGetNumberOfUsers, when set, replaces the testify expectation for
	// GetNumberOfUsers.
	OnGetNumberOfUsers func(ctx context.Context) (int64, error)

	// OnGetNumberOfBookmarks, when set, replaces the testify expectation for
	// GetNumberOfBookmarks.
	OnGetNumberOfBookmarks func(ctx context.Context) (int64, error)
}

func (m *StorageMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *StorageMock) BeginTransaction() (*sql.Tx, error) {
	args := m.Called()
	tx, _ := args.Get(0).(*sql.Tx)
	return tx, args.Error(1)
}

func (m *StorageMock) CommitTransaction(tx *sql.Tx) error {
	args := m.Called(tx)
	return args.Error(0)
}

func (m *StorageMock) RollbackTransaction(tx *sql.Tx) error {
	args := m.Called(tx)
	return args.Error(0)
}

func (m *StorageMock) InsertBookmark(
	ctx context.Context,
	bookmark *models.Bookmark,
	tx *sql.Tx,
) (*models.Bookmark, error) {
	args := m.Called(ctx, bookmark, tx)
	result, _ := args.Get(0).(*models.Bookmark)
	return result, args.Error(1)
}

func (m *StorageMock) DeleteBookmark(ctx context.Context, userID, bookmarkID string, tx *sql.Tx) (bool, error) {
	args := m.Called(ctx, userID, bookmarkID, tx)
	return args.Bool(0), args.Error(1)
}

func (m *StorageMock) GetBookmarksByOwner(ctx context.Context, userID string) (models.Bookmarks, error) {
	args := m.Called(ctx, userID)
	result, _ := args.Get(0).(models.Bookmarks)
	return result, args.Error(1)
}

func (m *StorageMock) UpsertUserByIdentity(ctx context.Context, identity user.Identity, tx *sql.Tx) (*user.User, error) {
	args := m.Called(ctx, identity, tx)
	result, _ := args.Get(0).(*user.User)
	return result, args.Error(1)
}

func (m *StorageMock) GetUserByID(ctx context.Context, userID string, tx *sql.Tx) (*user.User, error) {
	args := m.Called(ctx, userID, tx)
	result, _ := args.Get(0).(*user.User)
	return result, args.Error(1)
}

func (m *StorageMock) RevokeSessions(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *StorageMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// GetNumberOfUsers returns the number of users as defined by the mock.
func (m *StorageMock) GetNumberOfUsers(ctx context.Context) (int64, error) {
	if m.OnGetNumberOfUsers != nil {
		return m.OnGetNumberOfUsers(ctx)
	}
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// GetNumberOfBookmarks returns the number of bookmarks as defined by the mock.
func (m *StorageMock) GetNumberOfBookmarks(ctx context.Context) (int64, error) {
	if m.OnGetNumberOfBookmarks != nil {
		return m.OnGetNumberOfBookmarks(ctx)
	}
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}
