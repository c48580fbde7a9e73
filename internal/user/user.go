// Package user defines the user model used throughout the application,
// particularly for authentication and owner scoping of bookmarks.
package user

import "time"

// User represents a signed-in account.
// It is created on the first OAuth sign-in and owns bookmark records.
type User struct {
	// ID is the unique identifier of the user, meaning a UUID.
	ID string `json:"id"`

	// Email is the address reported by the identity provider.
	Email string `json:"email"`

	// Provider is the name of the OAuth provider the user signed in with.
	Provider string `json:"-"`

	// ProviderUserID is the provider-scoped subject identifier.
	ProviderUserID string `json:"-"`

	CreatedAt time.Time `json:"-"`

	// SessionVersion is embedded in issued tokens; signing out bumps it,
	// which invalidates every token issued before.
	SessionVersion int64 `json:"-"`
}

// Identity is what an OAuth provider reports about the signed-in person.
type Identity struct {
	Provider       string
	ProviderUserID string
	Email          string
}
