// Package storage declares the persistence contract shared by the
// PostgreSQL, JSON-file and in-memory bookmark stores.
package storage

import (
	"context"
	"database/sql"

	"github.com/patric-chuzhbe/smartmark/internal/models"
	"github.com/patric-chuzhbe/smartmark/internal/user"
)

// Storage keeps users and their bookmarks. Every bookmark operation is
// scoped by the owner's user ID.
type Storage interface {
	InsertBookmark(
		ctx context.Context,
		bookmark *models.Bookmark,
		transaction *sql.Tx,
	) (*models.Bookmark, error)

	// DeleteBookmark reports whether a bookmark owned by userID was removed.
	DeleteBookmark(
		ctx context.Context,
		userID string,
		bookmarkID string,
		transaction *sql.Tx,
	) (bool, error)

	// GetBookmarksByOwner returns the owner's bookmarks, newest first.
	GetBookmarksByOwner(ctx context.Context, userID string) (models.Bookmarks, error)

	UpsertUserByIdentity(
		ctx context.Context,
		identity user.Identity,
		transaction *sql.Tx,
	) (*user.User, error)

	// GetUserByID returns a user with an empty ID when nothing matches.
	GetUserByID(ctx context.Context, userID string, transaction *sql.Tx) (*user.User, error)

	// RevokeSessions bumps the user's session version.
	RevokeSessions(ctx context.Context, userID string) error

	GetNumberOfBookmarks(ctx context.Context) (int64, error)

	GetNumberOfUsers(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error

	Close() error

	BeginTransaction() (*sql.Tx, error)

	RollbackTransaction(transaction *sql.Tx) error

	CommitTransaction(transaction *sql.Tx) error
}
