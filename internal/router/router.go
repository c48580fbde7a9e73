// Package router wires the HTTP API: sign-in endpoints, the bookmark
// resource, the change event stream and internal statistics.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	validator "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/smartmark/internal/auth"
	"github.com/patric-chuzhbe/smartmark/internal/authenticator"
	"github.com/patric-chuzhbe/smartmark/internal/gzippedhttp"
	"github.com/patric-chuzhbe/smartmark/internal/ipchecker"
	"github.com/patric-chuzhbe/smartmark/internal/logger"
	"github.com/patric-chuzhbe/smartmark/internal/models"
	"github.com/patric-chuzhbe/smartmark/internal/service"
)

const defaultHeartbeat = 15 * time.Second

type bookmarkService interface {
	ListBookmarks(ctx context.Context, userID string) (models.Bookmarks, error)
	AddBookmark(ctx context.Context, userID, title, rawURL string) (*models.Bookmark, error)
	DeleteBookmark(ctx context.Context, userID, bookmarkID string) error
	GetInternalStats(ctx context.Context) (models.InternalStatsResponse, error)
	Ping(ctx context.Context) error
}

type changesSubscriber interface {
	Subscribe(userID string) (<-chan models.ChangeEvent, func())
}

// Router holds the handlers' dependencies.
type Router struct {
	service   bookmarkService
	changes   changesSubscriber
	heartbeat time.Duration
	validate  *validator.Validate
}

type InitOption func(*initOptions)

type initOptions struct {
	heartbeat time.Duration
}

// WithHeartbeat sets the interval of keep-alive comments on event streams.
func WithHeartbeat(heartbeat time.Duration) InitOption {
	return func(options *initOptions) {
		options.heartbeat = heartbeat
	}
}

// New builds the chi router with its middleware stack.
func New(
	svc bookmarkService,
	changes changesSubscriber,
	theAuth authenticator.Authenticator,
	ipChecker *ipchecker.IPChecker,
	optionsProto ...InitOption,
) *chi.Mux {
	options := &initOptions{
		heartbeat: defaultHeartbeat,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}
	if options.heartbeat <= 0 {
		options.heartbeat = defaultHeartbeat
	}

	myRouter := &Router{
		service:   svc,
		changes:   changes,
		heartbeat: options.heartbeat,
		validate:  validator.New(),
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.Recoverer,
		logger.WithLoggingHTTPMiddleware,
		gzippedhttp.UngzipRequest,
		gzippedhttp.GzipResponse,
		theAuth.AuthenticateUser,
	)

	router.Get(`/ping`, myRouter.GetPing)

	router.Route(`/auth`, func(r chi.Router) {
		r.Get(`/login`, theAuth.Login)
		r.Get(`/callback`, theAuth.Callback)
		r.Post(`/logout`, theAuth.Logout)
	})

	router.Route(`/api`, func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(theAuth.RequireUser)
			r.Get(`/session`, theAuth.Session)
			r.Get(`/bookmarks`, myRouter.GetApibookmarks)
			r.Post(`/bookmarks`, myRouter.PostApibookmarks)
			r.Delete(`/bookmarks/{id}`, myRouter.DeleteApibookmarksID)
			r.Get(`/bookmarks/changes`, myRouter.GetApibookmarksChanges)
		})

		r.With(ipChecker.TrustedOnly).Get(`/internal/stats`, myRouter.GetApiinternalstats)
	})

	return router
}

// GetPing reports whether the storage is reachable.
func (router *Router) GetPing(response http.ResponseWriter, request *http.Request) {
	if err := router.service.Ping(request.Context()); err != nil {
		logger.Log.Debugln("error while `router.service.Ping()` calling: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	response.WriteHeader(http.StatusOK)
}

// GetApibookmarks lists the current user's bookmarks, newest first.
func (router *Router) GetApibookmarks(response http.ResponseWriter, request *http.Request) {
	bookmarks, err := router.service.ListBookmarks(request.Context(), auth.UserIDFromContext(request.Context()))
	if err != nil {
		logger.Log.Debugln("error while `router.service.ListBookmarks()` calling: ", zap.Error(err))
		writeError(response, http.StatusInternalServerError, "could not load bookmarks")
		return
	}

	writeJSON(response, http.StatusOK, bookmarks)
}

// PostApibookmarks creates a bookmark from {"title", "url"}.
func (router *Router) PostApibookmarks(response http.ResponseWriter, request *http.Request) {
	var payload models.AddBookmarkRequest
	if err := json.NewDecoder(request.Body).Decode(&payload); err != nil {
		writeError(response, http.StatusBadRequest, "malformed JSON body")
		return
	}

	if err := router.validate.Struct(payload); err != nil {
		writeError(response, http.StatusBadRequest, "title and url are required")
		return
	}

	bookmark, err := router.service.AddBookmark(
		request.Context(),
		auth.UserIDFromContext(request.Context()),
		payload.Title,
		payload.URL,
	)
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(response, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, models.ErrUserNotFound):
		writeError(response, http.StatusUnauthorized, "unauthorized")
		return
	case err != nil:
		logger.Log.Debugln("error while `router.service.AddBookmark()` calling: ", zap.Error(err))
		writeError(response, http.StatusInternalServerError, "could not add bookmark")
		return
	}

	writeJSON(response, http.StatusCreated, bookmark)
}

// DeleteApibookmarksID deletes one of the current user's bookmarks.
func (router *Router) DeleteApibookmarksID(response http.ResponseWriter, request *http.Request) {
	err := router.service.DeleteBookmark(
		request.Context(),
		auth.UserIDFromContext(request.Context()),
		chi.URLParam(request, "id"),
	)
	switch {
	case errors.Is(err, models.ErrBookmarkNotFound):
		writeError(response, http.StatusNotFound, err.Error())
		return
	case err != nil:
		logger.Log.Debugln("error while `router.service.DeleteBookmark()` calling: ", zap.Error(err))
		writeError(response, http.StatusInternalServerError, "could not delete bookmark")
		return
	}

	response.WriteHeader(http.StatusNoContent)
}

// GetApibookmarksChanges streams the current user's change events as
// Server-Sent Events until the client goes away.
func (router *Router) GetApibookmarksChanges(response http.ResponseWriter, request *http.Request) {
	flusher, ok := response.(http.Flusher)
	if !ok {
		writeError(response, http.StatusInternalServerError, "streaming is not supported")
		return
	}

	events, cancel := router.changes.Subscribe(auth.UserIDFromContext(request.Context()))
	defer cancel()

	header := response.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	response.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprint(response, ": subscribed\n\n"); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(router.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-request.Context().Done():
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				logger.Log.Debugln("error while encoding a change event: ", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(response, "event: change\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := fmt.Fprint(response, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// GetApiinternalstats returns bookmark and user totals.
func (router *Router) GetApiinternalstats(response http.ResponseWriter, request *http.Request) {
	stats, err := router.service.GetInternalStats(request.Context())
	if err != nil {
		logger.Log.Debugln("error while `router.service.GetInternalStats()` calling: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJSON(response, http.StatusOK, stats)
}

func writeJSON(response http.ResponseWriter, status int, payload any) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(status)
	if err := json.NewEncoder(response).Encode(payload); err != nil {
		logger.Log.Debugln("error while encoding the response: ", zap.Error(err))
	}
}

func writeError(response http.ResponseWriter, status int, message string) {
	writeJSON(response, status, models.ErrorResponse{Error: message})
}
