// Package client talks to the smartmark HTTP API on behalf of a signed-in
// user. It implements the remote side of the view-state synchronizer:
// bookmark calls, sign-out and the change event stream.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/patric-chuzhbe/smartmark/internal/logger"
	"github.com/patric-chuzhbe/smartmark/internal/models"
)

const defaultTimeout = 10 * time.Second

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrStreamClosed = errors.New("change stream closed by the server")
)

// StatusError is returned for any unexpected HTTP status.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Message)
}

type Client struct {
	http   *resty.Client
	stream *resty.Client
}

type InitOption func(*initOptions)

type initOptions struct {
	timeout time.Duration
}

// WithTimeout bounds every call except the change stream.
func WithTimeout(timeout time.Duration) InitOption {
	return func(options *initOptions) {
		options.timeout = timeout
	}
}

func New(baseURL string, optionsProto ...InitOption) *Client {
	options := &initOptions{
		timeout: defaultTimeout,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	baseURL = strings.TrimRight(baseURL, "/")

	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(options.timeout).
			SetHeader("Accept", "application/json"),
		stream: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Accept", "text/event-stream"),
	}
}

func (c *Client) request(ctx context.Context, token string) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetError(&models.ErrorResponse{})
}

func checkResponse(resp *resty.Response, expected int) error {
	if resp.StatusCode() == expected {
		return nil
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return ErrUnauthorized
	}

	statusErr := &StatusError{Code: resp.StatusCode()}
	if failure, ok := resp.Error().(*models.ErrorResponse); ok && failure != nil {
		statusErr.Message = failure.Error
	}

	return statusErr
}

// Session resolves the token into the user it was issued for.
func (c *Client) Session(ctx context.Context, token string) (*models.SessionResponse, error) {
	var session models.SessionResponse
	resp, err := c.request(ctx, token).
		SetResult(&session).
		Get("/api/session")
	if err != nil {
		return nil, fmt.Errorf("in internal/client/client.go/Session(): error while `Get()` calling: %w", err)
	}
	if err := checkResponse(resp, http.StatusOK); err != nil {
		return nil, err
	}

	return &session, nil
}

func (c *Client) ListBookmarks(ctx context.Context, token string) (models.Bookmarks, error) {
	var bookmarks models.Bookmarks
	resp, err := c.request(ctx, token).
		SetResult(&bookmarks).
		Get("/api/bookmarks")
	if err != nil {
		return nil, fmt.Errorf("in internal/client/client.go/ListBookmarks(): error while `Get()` calling: %w", err)
	}
	if err := checkResponse(resp, http.StatusOK); err != nil {
		return nil, err
	}

	return bookmarks, nil
}

func (c *Client) AddBookmark(ctx context.Context, token, title, url string) (*models.Bookmark, error) {
	var bookmark models.Bookmark
	resp, err := c.request(ctx, token).
		SetBody(models.AddBookmarkRequest{Title: title, URL: url}).
		SetResult(&bookmark).
		Post("/api/bookmarks")
	if err != nil {
		return nil, fmt.Errorf("in internal/client/client.go/AddBookmark(): error while `Post()` calling: %w", err)
	}
	if err := checkResponse(resp, http.StatusCreated); err != nil {
		return nil, err
	}

	return &bookmark, nil
}

func (c *Client) DeleteBookmark(ctx context.Context, token, id string) error {
	resp, err := c.request(ctx, token).
		SetPathParam("id", id).
		Delete("/api/bookmarks/{id}")
	if err != nil {
		return fmt.Errorf("in internal/client/client.go/DeleteBookmark(): error while `Delete()` calling: %w", err)
	}

	return checkResponse(resp, http.StatusNoContent)
}

// SignOut ends the session on the server.
func (c *Client) SignOut(ctx context.Context, token string) error {
	resp, err := c.request(ctx, token).Post("/auth/logout")
	if err != nil {
		return fmt.Errorf("in internal/client/client.go/SignOut(): error while `Post()` calling: %w", err)
	}

	return checkResponse(resp, http.StatusNoContent)
}

// Watch subscribes to the change stream and calls onEvent for every event
// until ctx ends, in which case it returns nil, or the stream breaks.
func (c *Client) Watch(ctx context.Context, token string, onEvent func(models.ChangeEvent)) error {
	resp, err := c.stream.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetDoNotParseResponse(true).
		Get("/api/bookmarks/changes")
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("in internal/client/client.go/Watch(): error while `Get()` calling: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		if resp.StatusCode() == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		return &StatusError{Code: resp.StatusCode()}
	}

	err = readEvents(body, onEvent)
	if ctx.Err() != nil {
		return nil
	}

	return err
}

// readEvents parses a text/event-stream body. Comment lines and events
// other than "change" are skipped.
func readEvents(body io.Reader, onEvent func(models.ChangeEvent)) error {
	scanner := bufio.NewScanner(body)

	eventName := ""
	var data strings.Builder

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			if data.Len() > 0 && (eventName == "" || eventName == "change") {
				var event models.ChangeEvent
				if err := json.Unmarshal([]byte(data.String()), &event); err != nil {
					logger.Log.Debugw("skipping a malformed change event", "err", err)
				} else {
					onEvent(event)
				}
			}
			eventName = ""
			data.Reset()

		case strings.HasPrefix(line, ":"):

		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))

		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("in internal/client/client.go/readEvents(): error while reading the stream: %w", err)
	}

	return ErrStreamClosed
}
