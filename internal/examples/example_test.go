package examples

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/smartmark/internal/auth"
	"github.com/patric-chuzhbe/smartmark/internal/changefeed"
	"github.com/patric-chuzhbe/smartmark/internal/config"
	"github.com/patric-chuzhbe/smartmark/internal/db/memorystorage"
	"github.com/patric-chuzhbe/smartmark/internal/ipchecker"
	"github.com/patric-chuzhbe/smartmark/internal/logger"
	"github.com/patric-chuzhbe/smartmark/internal/models"
	"github.com/patric-chuzhbe/smartmark/internal/router"
	"github.com/patric-chuzhbe/smartmark/internal/service"
	"github.com/patric-chuzhbe/smartmark/internal/urlnorm"
	"github.com/patric-chuzhbe/smartmark/internal/user"
	"github.com/patric-chuzhbe/smartmark/internal/viewstate"
)

// mockAuth signs every request in as the same user.
type mockAuth struct {
	usr *user.User
}

func (m *mockAuth) AuthenticateUser(h http.Handler) http.Handler {
	return http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		h.ServeHTTP(response, request.WithContext(auth.WithUser(request.Context(), m.usr)))
	})
}

func (m *mockAuth) RequireUser(h http.Handler) http.Handler { return h }

func (m *mockAuth) Login(response http.ResponseWriter, _ *http.Request) {
	response.WriteHeader(http.StatusFound)
}

func (m *mockAuth) Callback(response http.ResponseWriter, _ *http.Request) {
	response.WriteHeader(http.StatusFound)
}

func (m *mockAuth) Logout(response http.ResponseWriter, _ *http.Request) {
	response.WriteHeader(http.StatusNoContent)
}

func (m *mockAuth) Session(response http.ResponseWriter, _ *http.Request) {
	_ = json.NewEncoder(response).Encode(models.SessionResponse{User: *m.usr})
}

func setupTestRouter(t *testing.T) (*httptest.Server, *memorystorage.MemoryStorage, *user.User) {
	cfg, err := config.New(config.WithDisableFlagsParsing(true))
	if t != nil {
		require.NoError(t, err)
	}

	err = logger.Init("error")
	if t != nil {
		require.NoError(t, err)
	}

	db, err := memorystorage.New()
	if t != nil {
		require.NoError(t, err)
	}

	usr, err := db.UpsertUserByIdentity(
		context.Background(),
		user.Identity{Provider: cfg.OAuthProvider, ProviderUserID: "example", Email: "reader@example.com"},
		nil,
	)
	if t != nil {
		require.NoError(t, err)
	}

	ipChecker, err := ipchecker.New(cfg.TrustedSubnet)
	if t != nil {
		require.NoError(t, err)
	}

	hub := changefeed.NewHub(cfg.SubscriberBuffer)
	theRouter := router.New(
		service.New(db, hub),
		hub,
		&mockAuth{usr: usr},
		ipChecker,
	)

	return httptest.NewServer(theRouter), db, usr
}

func Example_ping() {
	server, _, _ := setupTestRouter(nil)
	defer server.Close()

	resp, err := http.Get(server.URL + "/ping")
	if err != nil {
		panic(err)
	}
	defer resp.Body.Close()

	fmt.Println("Status Code:", resp.StatusCode)

	// Output:
	// Status Code: 200
}

func Example_addBookmark() {
	server, _, _ := setupTestRouter(nil)
	defer server.Close()

	body, err := json.Marshal(models.AddBookmarkRequest{Title: "Example", URL: "example.com"})
	if err != nil {
		panic(err)
	}

	resp, err := http.Post(server.URL+"/api/bookmarks", "application/json", bytes.NewReader(body))
	if err != nil {
		panic(err)
	}
	defer resp.Body.Close()

	var bookmark models.Bookmark
	if err := json.NewDecoder(resp.Body).Decode(&bookmark); err != nil {
		panic(err)
	}

	fmt.Println("Status Code:", resp.StatusCode)
	fmt.Println("Title:", bookmark.Title)
	fmt.Println("URL:", bookmark.URL)

	// Output:
	// Status Code: 201
	// Title: Example
	// URL: https://example.com/
}

func Example_listBookmarks() {
	server, db, usr := setupTestRouter(nil)
	defer server.Close()

	svc := service.New(db, changefeed.Nop{})
	for _, title := range []string{"First", "Second"} {
		if _, err := svc.AddBookmark(context.Background(), usr.ID, title, "example.com/"+title); err != nil {
			panic(err)
		}
	}

	resp, err := http.Get(server.URL + "/api/bookmarks")
	if err != nil {
		panic(err)
	}
	defer resp.Body.Close()

	var bookmarks models.Bookmarks
	if err := json.NewDecoder(resp.Body).Decode(&bookmarks); err != nil {
		panic(err)
	}

	fmt.Println("Status Code:", resp.StatusCode)
	for _, bookmark := range bookmarks {
		fmt.Println(bookmark.Title, bookmark.URL)
	}

	// Output:
	// Status Code: 200
	// Second https://example.com/Second
	// First https://example.com/First
}

func Example_deleteBookmark() {
	server, db, usr := setupTestRouter(nil)
	defer server.Close()

	bookmark, err := service.New(db, changefeed.Nop{}).AddBookmark(context.Background(), usr.ID, "Go", "go.dev")
	if err != nil {
		panic(err)
	}

	for i := 0; i < 2; i++ {
		req, err := http.NewRequest(http.MethodDelete, server.URL+"/api/bookmarks/"+bookmark.ID, nil)
		if err != nil {
			panic(err)
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			panic(err)
		}
		resp.Body.Close()

		fmt.Println("Status Code:", resp.StatusCode)
	}

	// Output:
	// Status Code: 204
	// Status Code: 404
}

func Example_normalize() {
	for _, raw := range []string{"example.com", "HTTP://Example.com:80/a?b=c", "", "not a url!!"} {
		normalized, err := urlnorm.Normalize(raw)
		fmt.Printf("%q -> %q, %v\n", raw, normalized, err)
	}

	// Output:
	// "example.com" -> "https://example.com/", <nil>
	// "HTTP://Example.com:80/a?b=c" -> "http://example.com/a?b=c", <nil>
	// "" -> "", empty URL
	// "not a url!!" -> "", invalid URL
}

func Example_filter() {
	bookmarks := models.Bookmarks{
		{Title: "GitHub"},
		{Title: "Go Documentation"},
		{Title: "Straße"},
	}

	for _, search := range []string{"git", "STRASSE", "zzz"} {
		fmt.Println(search, len(viewstate.Filter(bookmarks, search)))
	}

	// Output:
	// git 1
	// STRASSE 1
	// zzz 0
}
