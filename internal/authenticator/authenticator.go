// Package authenticator declares what the HTTP router needs from the
// authentication layer.
package authenticator

import "net/http"

type Authenticator interface {
	AuthenticateUser(h http.Handler) http.Handler
	RequireUser(h http.Handler) http.Handler
	Login(response http.ResponseWriter, request *http.Request)
	Callback(response http.ResponseWriter, request *http.Request)
	Logout(response http.ResponseWriter, request *http.Request)
	Session(response http.ResponseWriter, request *http.Request)
}
