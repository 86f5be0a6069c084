package audit

import "time"

// Kind names what happened in an audit event.
type Kind string

const (
	KindSignIn       Kind = "sign_in"
	KindTokenRefresh Kind = "token_refresh"
	KindSignOut      Kind = "sign_out"
)

// Event is a single authentication attempt recorded for auditing.
type Event struct {
	ID        string    `json:"id"`
	UserID    *string   `json:"user_id"`
	Email     string    `json:"email"`
	Kind      Kind      `json:"kind"`
	Success   bool      `json:"success"`
	Detail    string    `json:"detail"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
}
