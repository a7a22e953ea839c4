// Package identity defines the boundary to the remote identity service:
// the system of record for credentials, sessions and one-time codes. The
// rest of the application only ever calls this interface and interprets
// its results; credential verification itself happens remotely.
package identity

import (
	"context"
	"time"
)

// Purpose selects which kind of one-time code is being verified.
type Purpose string

const (
	PurposeSignUp   Purpose = "signup"
	PurposeRecovery Purpose = "recovery"
)

// User mirrors the identity attributes owned by the remote service.
// It is read-only from this side of the boundary.
type User struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"user_metadata,omitempty"`
}

// Session is the cached copy of a session issued by the remote service.
// Its lifetime is bounded by an explicit sign-out or by service-side
// invalidation.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
	User         User      `json:"user"`
}

// Event is emitted by the service client whenever the authenticated
// session changes.
type Event struct {
	Type    EventType
	Session *Session
}

type EventType string

const (
	EventSignedIn    EventType = "SIGNED_IN"
	EventSignedOut   EventType = "SIGNED_OUT"
	EventUserUpdated EventType = "USER_UPDATED"
)

// Unsubscribe detaches a previously registered listener.
type Unsubscribe func()

// Service is the capability contract of the remote identity service.
//
// Every call is a synchronous remote operation; errors of type *Error carry
// the service's message verbatim and must be surfaced to the user unmodified.
type Service interface {
	// RequestOneTimeCode asks the service to email a one-time code that can
	// later complete a sign-up.
	RequestOneTimeCode(ctx context.Context, email string) error
	// VerifyOneTimeCode proves control of the email address for the given
	// purpose. The code's expiry is judged entirely by the service. When the
	// verification establishes a session, it is returned so follow-up calls
	// can run under exactly that session; nil otherwise.
	VerifyOneTimeCode(ctx context.Context, email, code string, purpose Purpose) (*Session, error)
	// CreateAccount registers the account with the supplied credentials and
	// metadata (username, display name).
	CreateAccount(ctx context.Context, email, password string, metadata map[string]string) (User, error)
	// Authenticate performs a password sign-in and establishes a session.
	Authenticate(ctx context.Context, email, password string) (Session, error)
	// RequestPasswordReset asks the service to email a recovery code.
	RequestPasswordReset(ctx context.Context, email string) error
	// UpdatePassword replaces the password of the account the session
	// belongs to. The session is passed explicitly, typically straight from
	// the recovery-code verification, so concurrent callers can never act on
	// each other's accounts.
	UpdatePassword(ctx context.Context, session Session, newPassword string) error
	// SignOut revokes the current session.
	SignOut(ctx context.Context) error
	// CurrentSession returns the cached session, or nil when signed out.
	CurrentSession(ctx context.Context) (*Session, error)
	// Subscribe registers a listener for session change events. The listener
	// is invoked synchronously from the call that changed the session.
	Subscribe(fn func(Event)) Unsubscribe
}
