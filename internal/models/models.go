// Package models holds the request, response and record types shared by
// the HTTP router, the gRPC server, the storages and the API client.
package models

import (
	"errors"
	"time"

	"github.com/patric-chuzhbe/smartmark/internal/user"
)

// Bookmark is a persisted bookmark record. It is never updated in place.
type Bookmark struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Bookmarks []Bookmark

type AddBookmarkRequest struct {
	Title string `json:"title" validate:"required"`
	URL   string `json:"url" validate:"required"`
}

type DeleteBookmarkRequest struct {
	ID string `json:"id" validate:"required"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// SessionResponse describes the identity behind the request's token.
type SessionResponse struct {
	User  user.User `json:"user"`
	Token string    `json:"token"`
}

type InternalStatsResponse struct {
	Bookmarks int64 `json:"bookmarks"`
	Users     int64 `json:"users"`
}

// ChangeType mirrors the row operation that produced a change event.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeEvent signals that the bookmark set of one user changed.
// Receivers are expected to re-fetch instead of merging the payload.
type ChangeEvent struct {
	Type       ChangeType `json:"type"`
	Table      string     `json:"table"`
	UserID     string     `json:"user_id"`
	BookmarkID string     `json:"bookmark_id"`
	At         time.Time  `json:"at"`
}

const BookmarksTable = "bookmarks"

const (
	StorageTypeUnknown = iota
	StorageTypePostgresql
	StorageTypeFile
	StorageTypeMemory
)

var (
	ErrBookmarkNotFound = errors.New("bookmark not found")
	ErrUserNotFound     = errors.New("user not found")
)
