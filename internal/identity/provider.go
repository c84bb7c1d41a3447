// Package identity defines the identity provider capability: authenticated
// account lifecycle, auth-change notifications and profile updates.
package identity

import (
	"context"
	"errors"
)

// Failure messages are surfaced verbatim to end users.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnknownAccount     = errors.New("no account exists for that email address")
	ErrEmailInUse         = errors.New("an account already exists for that email address")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrNotConfigured      = errors.New("federated sign-in is not configured")
)

// Account is the provider's user object. DisplayName and PhotoURL may be
// empty until a profile write completes.
type Account struct {
	UID         string
	Email       string
	DisplayName string
	PhotoURL    string
}

// Profile is a partial profile update.
type Profile struct {
	DisplayName string
	PhotoURL    string
}

// AuthChangeFunc receives the account on sign-in and nil on sign-out. It also
// fires once at registration time with the current state.
type AuthChangeFunc func(acct *Account)

// Unsubscribe releases an auth-change registration. Synchronous: once it
// returns the callback will not run again.
type Unsubscribe func()

// Provider is the identity capability the session core consumes.
type Provider interface {
	SubscribeAuthChanges(cb AuthChangeFunc) Unsubscribe
	SignIn(ctx context.Context, email, password string) (*Account, error)
	SignUp(ctx context.Context, email, password string) (*Account, error)
	SignInFederated(ctx context.Context, rawIDToken string) (*Account, error)
	SignOut(ctx context.Context) error
	SendPasswordReset(ctx context.Context, email string) error
	UpdateProfile(ctx context.Context, uid string, p Profile) error
}
