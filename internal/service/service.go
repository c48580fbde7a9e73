package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/patric-chuzhbe/smartmark/internal/logger"
	"github.com/patric-chuzhbe/smartmark/internal/models"
	"github.com/patric-chuzhbe/smartmark/internal/urlnorm"
	"github.com/patric-chuzhbe/smartmark/internal/user"
)

type transactioner interface {
	BeginTransaction() (*sql.Tx, error)

	RollbackTransaction(transaction *sql.Tx) error

	CommitTransaction(transaction *sql.Tx) error
}

type bookmarksKeeper interface {
	InsertBookmark(
		ctx context.Context,
		bookmark *models.Bookmark,
		transaction *sql.Tx,
	) (*models.Bookmark, error)

	DeleteBookmark(
		ctx context.Context,
		userID string,
		bookmarkID string,
		transaction *sql.Tx,
	) (bool, error)

	GetBookmarksByOwner(ctx context.Context, userID string) (models.Bookmarks, error)

	GetNumberOfBookmarks(ctx context.Context) (int64, error)
}

type usersKeeper interface {
	GetUserByID(ctx context.Context, userID string, transaction *sql.Tx) (*user.User, error)

	GetNumberOfUsers(ctx context.Context) (int64, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type storage interface {
	transactioner
	bookmarksKeeper
	usersKeeper
	pinger
}

type publisher interface {
	Publish(ctx context.Context, event models.ChangeEvent) error
}

// ErrInvalidInput wraps every validation failure of a new bookmark.
var ErrInvalidInput = errors.New("invalid bookmark")

type Service struct {
	db        storage
	publisher publisher
	now       func() time.Time
}

// New creates the service. Mutations are announced through publisher.
func New(db storage, publisher publisher) *Service {
	return &Service{
		db:        db,
		publisher: publisher,
		now:       time.Now,
	}
}

// ListBookmarks returns the user's bookmarks, newest first.
func (s *Service) ListBookmarks(ctx context.Context, userID string) (models.Bookmarks, error) {
	return s.db.GetBookmarksByOwner(ctx, userID)
}

// AddBookmark validates and normalizes the input, stores it for userID and
// announces an INSERT.
func (s *Service) AddBookmark(ctx context.Context, userID, rawTitle, rawURL string) (*models.Bookmark, error) {
	title, err := urlnorm.Title(rawTitle)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	normalizedURL, err := urlnorm.Normalize(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	tx, err := s.db.BeginTransaction()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = s.db.RollbackTransaction(tx)
	}()

	owner, err := s.db.GetUserByID(ctx, userID, tx)
	if err != nil {
		return nil, err
	}
	if owner.ID == "" {
		return nil, models.ErrUserNotFound
	}

	bookmark, err := s.db.InsertBookmark(
		ctx,
		&models.Bookmark{
			Title:  title,
			URL:    normalizedURL,
			UserID: owner.ID,
		},
		tx,
	)
	if err != nil {
		return nil, err
	}

	if err := s.db.CommitTransaction(tx); err != nil {
		return nil, err
	}

	s.publish(ctx, models.ChangeInsert, bookmark.UserID, bookmark.ID)

	return bookmark, nil
}

// DeleteBookmark removes one of the user's bookmarks and announces a DELETE.
func (s *Service) DeleteBookmark(ctx context.Context, userID, bookmarkID string) error {
	deleted, err := s.db.DeleteBookmark(ctx, userID, bookmarkID, nil)
	if err != nil {
		return err
	}
	if !deleted {
		return models.ErrBookmarkNotFound
	}

	s.publish(ctx, models.ChangeDelete, userID, bookmarkID)

	return nil
}

// The mutation is already committed when publishing fails; subscribers
// catch up on their next event or fetch.
func (s *Service) publish(ctx context.Context, changeType models.ChangeType, userID, bookmarkID string) {
	err := s.publisher.Publish(ctx, models.ChangeEvent{
		Type:       changeType,
		Table:      models.BookmarksTable,
		UserID:     userID,
		BookmarkID: bookmarkID,
		At:         s.now().UTC(),
	})
	if err != nil {
		logger.Log.Warnw("error while publishing a change event", "type", changeType, "err", err)
	}
}

// GetInternalStats returns the total number of bookmarks and users.
func (s *Service) GetInternalStats(ctx context.Context) (models.InternalStatsResponse, error) {
	bookmarks, err := s.db.GetNumberOfBookmarks(ctx)
	if err != nil {
		return models.InternalStatsResponse{}, err
	}

	users, err := s.db.GetNumberOfUsers(ctx)
	if err != nil {
		return models.InternalStatsResponse{}, err
	}

	return models.InternalStatsResponse{
		Bookmarks: bookmarks,
		Users:     users,
	}, nil
}

// Ping checks the health of the database/storage layer.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
