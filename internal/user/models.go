package user

import (
	"time"

	"github.com/edustack/edustack/internal/auth"
)

// User is a row of the users table. JSON encoding uses the column names.
type User struct {
	ID           string        `json:"id"`
	Email        string        `json:"email"`
	PasswordHash string        `json:"-"`
	Role         string        `json:"role"`
	FirstName    string        `json:"first_name"`
	LastName     string        `json:"last_name"`
	PhoneNumber  *string       `json:"phone_number"`
	AvatarURL    *string       `json:"avatar_url"`
	SchoolID     *string       `json:"school_id"`
	IsActive     bool          `json:"is_active"`
	Metadata     auth.Metadata `json:"-"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Profile converts the row into the normalized application user. Unknown
// roles map to the default role.
func (u *User) Profile() auth.User {
	return auth.User{
		ID:          u.ID,
		Email:       u.Email,
		Role:        auth.ParseRole(u.Role),
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		PhoneNumber: u.PhoneNumber,
		AvatarURL:   u.AvatarURL,
		SchoolID:    u.SchoolID,
		IsActive:    u.IsActive,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// Identity returns the provider identity record for the user: id, email and
// the stored metadata.
func (u *User) Identity() auth.Identity {
	return auth.Identity{ID: u.ID, Email: u.Email, Metadata: u.Metadata}
}

// CreateUserInput holds the fields required to create a new user.
type CreateUserInput struct {
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	Role        string  `json:"role"`
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	PhoneNumber *string `json:"phone_number,omitempty"`
	SchoolID    *string `json:"school_id,omitempty"`
}

// metadata builds the identity metadata stored alongside a new row.
func (in CreateUserInput) metadata(role string) auth.Metadata {
	md := auth.Metadata{Role: &role}
	if in.FirstName != "" {
		md.FirstNameSnake = &in.FirstName
	}
	if in.LastName != "" {
		md.LastNameSnake = &in.LastName
	}
	md.PhoneNumberSnake = in.PhoneNumber
	md.SchoolIDSnake = in.SchoolID
	return md
}

// Session is a refresh session. Only the hash of its token is stored.
type Session struct {
	TokenHash string    `json:"-"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
