// Package auth provides OAuth sign-in handlers, JWT session tokens and the
// middleware that identifies the user behind a request. Tokens are read
// from the Authorization header (with or without the Bearer prefix) or from
// the session cookie.
package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/patric-chuzhbe/smartmark/internal/logger"
	"github.com/patric-chuzhbe/smartmark/internal/models"
	"github.com/patric-chuzhbe/smartmark/internal/user"
)

const (
	stateCookieName = "smartmark_oauth_state"
	stateCookieTTL  = 10 * time.Minute
	callbackPath    = "/auth/callback"
)

var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrStateInvalid = errors.New("OAuth state mismatch")
	ErrNoSubject    = errors.New("identity provider returned no subject")
)

type userKeeper interface {
	UpsertUserByIdentity(ctx context.Context, identity user.Identity, transaction *sql.Tx) (*user.User, error)
	GetUserByID(ctx context.Context, userID string, transaction *sql.Tx) (*user.User, error)
	RevokeSessions(ctx context.Context, userID string) error
}

// Provider describes the OAuth identity provider.
type Provider struct {
	Name         string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string
}

// Auth handles sign-in, session tokens and request authentication.
type Auth struct {
	// db is the interface to the user data storage.
	db userKeeper

	// authCookieName is the name of the cookie used to store the JWT.
	authCookieName string

	// authCookieSigningSecretKey is the key used to sign JWTs.
	authCookieSigningSecretKey []byte

	sessionTTL   time.Duration
	baseURL      string
	providerName string
	userInfoURL  string
	oauthConfig  *oauth2.Config
	httpClient   *resty.Client
}

// Claims represents the JWT claims used by the system.
type Claims struct {
	jwt.RegisteredClaims
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	Version int64  `json:"ver"`
}

// ContextKey is a custom type for storing values in context to avoid collisions.
type ContextKey string

const (
	// UserIDKey is the context key of the authenticated user's ID.
	UserIDKey ContextKey = "userID"

	userKey  ContextKey = "user"
	tokenKey ContextKey = "token"
)

type InitOption func(*initOptions)

type initOptions struct {
	sessionTTL time.Duration
}

// WithSessionTTL sets how long issued session tokens stay valid.
func WithSessionTTL(ttl time.Duration) InitOption {
	return func(options *initOptions) {
		options.sessionTTL = ttl
	}
}

// New creates a new Auth handler. baseURL is the public origin of the
// service: the OAuth redirect URI and the post-sign-in redirect derive from it.
func New(
	db userKeeper,
	authCookieName string,
	authCookieSigningSecretKey []byte,
	baseURL string,
	provider Provider,
	optionsProto ...InitOption,
) *Auth {
	options := &initOptions{
		sessionTTL: 7 * 24 * time.Hour,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	baseURL = strings.TrimRight(baseURL, "/")

	return &Auth{
		db:                         db,
		authCookieName:             authCookieName,
		authCookieSigningSecretKey: authCookieSigningSecretKey,
		sessionTTL:                 options.sessionTTL,
		baseURL:                    baseURL,
		providerName:               provider.Name,
		userInfoURL:                provider.UserInfoURL,
		oauthConfig: &oauth2.Config{
			ClientID:     provider.ClientID,
			ClientSecret: provider.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  provider.AuthURL,
				TokenURL: provider.TokenURL,
			},
			RedirectURL: baseURL + callbackPath,
			Scopes:      provider.Scopes,
		},
		httpClient: resty.New().SetTimeout(10 * time.Second),
	}
}

func (a *Auth) secureCookies() bool {
	return strings.HasPrefix(a.baseURL, "https://")
}

// Login redirects the browser to the identity provider.
func (a *Auth) Login(response http.ResponseWriter, request *http.Request) {
	state := uuid.NewString()

	http.SetCookie(response, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int(stateCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   a.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(response, request, a.oauthConfig.AuthCodeURL(state), http.StatusFound)
}

// Callback completes the OAuth flow: it exchanges the code, resolves the
// user, sets the session cookie and redirects back to the app.
func (a *Auth) Callback(response http.ResponseWriter, request *http.Request) {
	query := request.URL.Query()

	stateCookie, err := request.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != query.Get("state") {
		logger.Log.Debugln("Error while checking OAuth state: ", zap.Error(ErrStateInvalid))
		writeJSONError(response, http.StatusBadRequest, ErrStateInvalid.Error())
		return
	}
	http.SetCookie(response, &http.Cookie{Name: stateCookieName, Path: "/auth", MaxAge: -1})

	if providerErr := query.Get("error"); providerErr != "" {
		writeJSONError(response, http.StatusUnauthorized, "sign-in was not completed: "+providerErr)
		return
	}

	token, err := a.oauthConfig.Exchange(request.Context(), query.Get("code"))
	if err != nil {
		logger.Log.Debugln("Error calling the `a.oauthConfig.Exchange()`: ", zap.Error(err))
		writeJSONError(response, http.StatusUnauthorized, "could not complete sign-in")
		return
	}

	identity, err := a.fetchIdentity(request.Context(), token.AccessToken)
	if err != nil {
		logger.Log.Debugln("Error calling the `a.fetchIdentity()`: ", zap.Error(err))
		writeJSONError(response, http.StatusUnauthorized, "could not complete sign-in")
		return
	}

	usr, err := a.db.UpsertUserByIdentity(request.Context(), *identity, nil)
	if err != nil {
		logger.Log.Debugln("Error calling the `a.db.UpsertUserByIdentity()`: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	JWTString, err := a.IssueToken(usr)
	if err != nil {
		logger.Log.Debugln("Error calling the `a.IssueToken()`: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	http.SetCookie(response, &http.Cookie{
		Name:     a.authCookieName,
		Value:    JWTString,
		Path:     "/",
		MaxAge:   int(a.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   a.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(response, request, a.baseURL+"/", http.StatusFound)
}

// Logout revokes every session token of the signed-in user, the cookie and
// tokens pasted into other clients alike, and expires the session cookie.
func (a *Auth) Logout(response http.ResponseWriter, request *http.Request) {
	if userID := UserIDFromContext(request.Context()); userID != "" {
		if err := a.db.RevokeSessions(request.Context(), userID); err != nil {
			logger.Log.Debugln("Error calling the `a.db.RevokeSessions()`: ", zap.Error(err))
			writeJSONError(response, http.StatusInternalServerError, "could not sign out")
			return
		}
	}

	http.SetCookie(response, &http.Cookie{
		Name:     a.authCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
	response.WriteHeader(http.StatusNoContent)
}

// Session describes the user behind the request and echoes the token so
// non-browser clients can reuse it.
func (a *Auth) Session(response http.ResponseWriter, request *http.Request) {
	usr, ok := UserFromContext(request.Context())
	if !ok {
		writeJSONError(response, http.StatusUnauthorized, "unauthorized")
		return
	}

	token, _ := request.Context().Value(tokenKey).(string)

	response.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(response).Encode(models.SessionResponse{User: *usr, Token: token}); err != nil {
		logger.Log.Debugln("error while encoding the session response", zap.Error(err))
	}
}

type userInfo struct {
	Sub   string          `json:"sub"`
	ID    json.RawMessage `json:"id"`
	Email string          `json:"email"`
}

func (a *Auth) fetchIdentity(ctx context.Context, accessToken string) (*user.Identity, error) {
	var info userInfo
	resp, err := a.httpClient.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(&info).
		Get(a.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("in internal/auth/auth.go/fetchIdentity(): error while requesting user info: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("in internal/auth/auth.go/fetchIdentity(): user info endpoint answered %s", resp.Status())
	}

	subject := info.Sub
	if subject == "" {
		subject = strings.Trim(string(info.ID), `"`)
	}
	if subject == "" || subject == "null" {
		return nil, ErrNoSubject
	}

	return &user.Identity{
		Provider:       a.providerName,
		ProviderUserID: subject,
		Email:          info.Email,
	}, nil
}

// AuthenticateUser is an HTTP middleware that resolves the request's token
// to a user and stores it in the request context. Requests without a valid
// token pass through anonymously.
func (a *Auth) AuthenticateUser(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		tokenString := a.getTokenStringFromAuthorizationHeaderOrCookie(request)
		if tokenString == "" {
			h.ServeHTTP(response, request)
			return
		}

		usr, err := a.ResolveUser(request.Context(), tokenString)
		if err != nil {
			if !errors.Is(err, ErrInvalidToken) {
				logger.Log.Debugln("Error calling the `a.ResolveUser()`: ", zap.Error(err))
				response.WriteHeader(http.StatusInternalServerError)
				return
			}
			h.ServeHTTP(response, request)
			return
		}

		ctx := WithUser(request.Context(), usr)
		ctx = context.WithValue(ctx, tokenKey, tokenString)
		h.ServeHTTP(response, request.WithContext(ctx))
	}

	return http.HandlerFunc(middleware)
}

// RequireUser answers 401 unless AuthenticateUser found a user.
func (a *Auth) RequireUser(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		if UserIDFromContext(request.Context()) == "" {
			writeJSONError(response, http.StatusUnauthorized, "unauthorized")
			return
		}
		h.ServeHTTP(response, request)
	}

	return http.HandlerFunc(middleware)
}

// ResolveUser validates the token and loads the user it names.
// It returns ErrInvalidToken for bad, expired or revoked tokens and for
// users that no longer exist.
func (a *Auth) ResolveUser(ctx context.Context, tokenString string) (*user.User, error) {
	claims, err := a.ParseToken(tokenString)
	if err != nil {
		return nil, err
	}

	usr, err := a.db.GetUserByID(ctx, claims.UserID, nil)
	if err != nil {
		return nil, err
	}
	if usr.ID == "" || usr.SessionVersion != claims.Version {
		return nil, ErrInvalidToken
	}

	return usr, nil
}

func (a *Auth) getTokenStringFromAuthorizationHeaderOrCookie(request *http.Request) string {
	if tokenString := StripBearer(request.Header.Get("Authorization")); tokenString != "" {
		return tokenString
	}

	cookie, err := request.Cookie(a.authCookieName)
	if err == nil {
		return cookie.Value
	}

	return ""
}

// StripBearer removes an optional "Bearer " prefix.
func StripBearer(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}

	return header
}

// ParseToken verifies the signature and expiry of a session token.
func (a *Auth) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return a.authCookieSigningSecretKey, nil
		},
	)
	if err != nil || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// IssueToken builds a signed session token for usr.
func (a *Auth) IssueToken(usr *user.User) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   usr.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.sessionTTL)),
		},
		UserID:  usr.ID,
		Email:   usr.Email,
		Version: usr.SessionVersion,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.authCookieSigningSecretKey)
}

// WithUser stores the authenticated user in ctx.
func WithUser(ctx context.Context, usr *user.User) context.Context {
	ctx = context.WithValue(ctx, userKey, usr)
	return context.WithValue(ctx, UserIDKey, usr.ID)
}

// UserFromContext returns the user stored by AuthenticateUser.
func UserFromContext(ctx context.Context) (*user.User, bool) {
	usr, ok := ctx.Value(userKey).(*user.User)
	return usr, ok && usr != nil && usr.ID != ""
}

// UserIDFromContext returns the authenticated user's ID or "".
func UserIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKey).(string)
	return userID
}

func writeJSONError(response http.ResponseWriter, status int, message string) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(status)
	_ = json.NewEncoder(response).Encode(models.ErrorResponse{Error: message})
}
