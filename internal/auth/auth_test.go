package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/smartmark/internal/db/memorystorage"
	"github.com/patric-chuzhbe/smartmark/internal/models"
	"github.com/patric-chuzhbe/smartmark/internal/user"
)

const (
	testCookieName = "smartmark_session"
	testBaseURL    = "http://app.example"
)

var testSecret = []byte("test-signing-key-0123456789")

func newFakeProvider(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"provider-token","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer provider-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sub":"google-42","email":"alice@example.com"}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestAuth(t *testing.T) (*Auth, *memorystorage.MemoryStorage) {
	t.Helper()

	provider := newFakeProvider(t)
	db, err := memorystorage.New()
	require.NoError(t, err)

	return New(
		db,
		testCookieName,
		testSecret,
		testBaseURL,
		Provider{
			Name:         "google",
			ClientID:     "client",
			ClientSecret: "secret",
			AuthURL:      provider.URL + "/authorize",
			TokenURL:     provider.URL + "/token",
			UserInfoURL:  provider.URL + "/userinfo",
			Scopes:       []string{"openid", "email"},
		},
		WithSessionTTL(time.Hour),
	), db
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, cookie := range cookies {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func signIn(t *testing.T, a *Auth) *http.Cookie {
	t.Helper()

	login := httptest.NewRecorder()
	a.Login(login, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	require.Equal(t, http.StatusFound, login.Code)

	location, err := url.Parse(login.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, testBaseURL+"/auth/callback", location.Query().Get("redirect_uri"))
	state := location.Query().Get("state")
	require.NotEmpty(t, state)

	stateCookie := findCookie(login.Result().Cookies(), stateCookieName)
	require.NotNil(t, stateCookie)

	callbackRequest := httptest.NewRequest(http.MethodGet, "/auth/callback?code=good-code&state="+state, nil)
	callbackRequest.AddCookie(stateCookie)
	callback := httptest.NewRecorder()
	a.Callback(callback, callbackRequest)

	require.Equal(t, http.StatusFound, callback.Code, callback.Body.String())
	assert.Equal(t, testBaseURL+"/", callback.Header().Get("Location"))

	session := findCookie(callback.Result().Cookies(), testCookieName)
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)
	return session
}

func TestSignInFlow(t *testing.T) {
	a, db := newTestAuth(t)

	session := signIn(t, a)

	claims, err := a.ParseToken(session.Value)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", claims.Email)

	usr, err := db.GetUserByID(context.Background(), claims.UserID, nil)
	require.NoError(t, err)
	assert.Equal(t, "google-42", usr.ProviderUserID)

	// Signing in again keeps the same user.
	again := signIn(t, a)
	againClaims, err := a.ParseToken(again.Value)
	require.NoError(t, err)
	assert.Equal(t, claims.UserID, againClaims.UserID)
}

func TestCallbackRejectsStateMismatch(t *testing.T) {
	a, _ := newTestAuth(t)

	request := httptest.NewRequest(http.MethodGet, "/auth/callback?code=good-code&state=forged", nil)
	request.AddCookie(&http.Cookie{Name: stateCookieName, Value: "expected"})
	recorder := httptest.NewRecorder()
	a.Callback(recorder, request)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Nil(t, findCookie(recorder.Result().Cookies(), testCookieName))
}

func TestCallbackRejectsBadCode(t *testing.T) {
	a, _ := newTestAuth(t)

	request := httptest.NewRequest(http.MethodGet, "/auth/callback?code=bad-code&state=s", nil)
	request.AddCookie(&http.Cookie{Name: stateCookieName, Value: "s"})
	recorder := httptest.NewRecorder()
	a.Callback(recorder, request)

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestMiddlewares(t *testing.T) {
	a, _ := newTestAuth(t)
	session := signIn(t, a)

	handler := a.AuthenticateUser(a.RequireUser(http.HandlerFunc(a.Session)))

	t.Run("cookie", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodGet, "/api/session", nil)
		request.AddCookie(session)
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)

		require.Equal(t, http.StatusOK, recorder.Code)
		var response models.SessionResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
		assert.Equal(t, "alice@example.com", response.User.Email)
		assert.Equal(t, session.Value, response.Token)
	})

	t.Run("bearer header", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodGet, "/api/session", nil)
		request.Header.Set("Authorization", "Bearer "+session.Value)
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)

		assert.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("anonymous", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/session", nil))

		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})

	t.Run("forged token", func(t *testing.T) {
		forger := New(nil, testCookieName, []byte("another-key-0123456789"), testBaseURL, Provider{})
		token, err := forger.IssueToken(&user.User{ID: "someone"})
		require.NoError(t, err)

		request := httptest.NewRequest(http.MethodGet, "/api/session", nil)
		request.Header.Set("Authorization", "Bearer "+token)
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)

		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})
}

func TestLogoutExpiresCookie(t *testing.T) {
	a, _ := newTestAuth(t)

	recorder := httptest.NewRecorder()
	a.Logout(recorder, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	assert.Equal(t, http.StatusNoContent, recorder.Code)
	cookie := findCookie(recorder.Result().Cookies(), testCookieName)
	require.NotNil(t, cookie)
	assert.True(t, cookie.MaxAge < 0)
}

func TestLogoutRevokesTokens(t *testing.T) {
	a, db := newTestAuth(t)
	ctx := context.Background()

	usr, err := db.UpsertUserByIdentity(ctx, user.Identity{Provider: "google", ProviderUserID: "google-7", Email: "bob@example.com"}, nil)
	require.NoError(t, err)
	pasted, err := a.IssueToken(usr)
	require.NoError(t, err)
	_, err = a.ResolveUser(ctx, pasted)
	require.NoError(t, err)

	logout := a.AuthenticateUser(http.HandlerFunc(a.Logout))
	request := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	request.Header.Set("Authorization", "Bearer "+pasted)
	recorder := httptest.NewRecorder()
	logout.ServeHTTP(recorder, request)
	require.Equal(t, http.StatusNoContent, recorder.Code)

	_, err = a.ResolveUser(ctx, pasted)
	assert.ErrorIs(t, err, ErrInvalidToken, "A token kept by another client stops working after sign-out")

	usr, err = db.GetUserByID(ctx, usr.ID, nil)
	require.NoError(t, err)
	fresh, err := a.IssueToken(usr)
	require.NoError(t, err)
	_, err = a.ResolveUser(ctx, fresh)
	assert.NoError(t, err, "Signing in again issues a working token")
}

func TestStripBearer(t *testing.T) {
	assert.Equal(t, "abc", StripBearer("Bearer abc"))
	assert.Equal(t, "abc", StripBearer("bearer  abc"))
	assert.Equal(t, "abc", StripBearer("abc"))
	assert.Equal(t, "", StripBearer(""))
}
