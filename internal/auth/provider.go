package auth

import "context"

// EventKind names an auth-state change pushed by a provider.
type EventKind string

const (
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
	EventUserUpdated    EventKind = "USER_UPDATED"
)

// Event is a single auth-state change. Session is nil for EventSignedOut.
type Event struct {
	Kind    EventKind `json:"event"`
	Session *Session  `json:"session,omitempty"`
}

// Subscription is a live auth-state stream. Close stops delivery and closes
// the Events channel.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Provider is the identity provider the session manager talks to.
type Provider interface {
	// SignInWithPassword exchanges credentials for a session.
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	// SignOut ends the current session.
	SignOut(ctx context.Context) error
	// GetSession returns the active session, or nil, nil when there is none.
	GetSession(ctx context.Context) (*Session, error)
	// OnAuthStateChange subscribes to auth-state events.
	OnAuthStateChange(ctx context.Context) (Subscription, error)
}
