package grpcserver

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/patric-chuzhbe/smartmark/internal/auth"
	"github.com/patric-chuzhbe/smartmark/internal/logger"
	"github.com/patric-chuzhbe/smartmark/internal/models"
	"github.com/patric-chuzhbe/smartmark/internal/service"
)

type bookmarkService interface {
	ListBookmarks(ctx context.Context, userID string) (models.Bookmarks, error)
	AddBookmark(ctx context.Context, userID, title, rawURL string) (*models.Bookmark, error)
	DeleteBookmark(ctx context.Context, userID, bookmarkID string) error
	Ping(ctx context.Context) error
}

type changesSubscriber interface {
	Subscribe(userID string) (<-chan models.ChangeEvent, func())
}

// BookmarkHandler serves smartmark.BookmarkService.
type BookmarkHandler struct {
	svc     bookmarkService
	changes changesSubscriber
}

func NewBookmarkHandler(svc bookmarkService, changes changesSubscriber) *BookmarkHandler {
	return &BookmarkHandler{svc: svc, changes: changes}
}

func currentUserID(ctx context.Context) (string, error) {
	userID := auth.UserIDFromContext(ctx)
	if userID == "" {
		return "", status.Error(codes.Unauthenticated, "missing user ID")
	}

	return userID, nil
}

func (h *BookmarkHandler) Ping(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := h.svc.Ping(ctx); err != nil {
		logger.Log.Debugln("error while `h.svc.Ping()` calling: ", zap.Error(err))
		return nil, status.Error(codes.Unavailable, "storage is unavailable")
	}

	return &emptypb.Empty{}, nil
}

func (h *BookmarkHandler) ListBookmarks(ctx context.Context, _ *ListBookmarksRequest) (*ListBookmarksResponse, error) {
	userID, err := currentUserID(ctx)
	if err != nil {
		return nil, err
	}

	bookmarks, err := h.svc.ListBookmarks(ctx, userID)
	if err != nil {
		logger.Log.Debugln("error while `h.svc.ListBookmarks()` calling: ", zap.Error(err))
		return nil, status.Error(codes.Internal, "could not load bookmarks")
	}

	return &ListBookmarksResponse{Bookmarks: bookmarks}, nil
}

func (h *BookmarkHandler) AddBookmark(ctx context.Context, req *models.AddBookmarkRequest) (*models.Bookmark, error) {
	userID, err := currentUserID(ctx)
	if err != nil {
		return nil, err
	}

	bookmark, err := h.svc.AddBookmark(ctx, userID, req.Title, req.URL)
	switch {
	case err == nil:
		return bookmark, nil
	case errors.Is(err, service.ErrInvalidInput):
		return nil, status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, models.ErrUserNotFound):
		return nil, status.Error(codes.Unauthenticated, err.Error())
	default:
		logger.Log.Debugln("error while `h.svc.AddBookmark()` calling: ", zap.Error(err))
		return nil, status.Error(codes.Internal, "could not add bookmark")
	}
}

func (h *BookmarkHandler) DeleteBookmark(ctx context.Context, req *models.DeleteBookmarkRequest) (*emptypb.Empty, error) {
	userID, err := currentUserID(ctx)
	if err != nil {
		return nil, err
	}

	if req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id must not be empty")
	}

	err = h.svc.DeleteBookmark(ctx, userID, req.ID)
	switch {
	case err == nil:
		return &emptypb.Empty{}, nil
	case errors.Is(err, models.ErrBookmarkNotFound):
		return nil, status.Error(codes.NotFound, err.Error())
	default:
		logger.Log.Debugln("error while `h.svc.DeleteBookmark()` calling: ", zap.Error(err))
		return nil, status.Error(codes.Internal, "could not delete bookmark")
	}
}

// WatchBookmarks streams the caller's change events until the client leaves.
func (h *BookmarkHandler) WatchBookmarks(_ *WatchBookmarksRequest, stream BookmarkServiceWatchBookmarksServer) error {
	userID, err := currentUserID(stream.Context())
	if err != nil {
		return err
	}

	events, cancel := h.changes.Subscribe(userID)
	defer cancel()

	for {
		select {
		case <-stream.Context().Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if err := stream.Send(&event); err != nil {
				return err
			}
		}
	}
}
