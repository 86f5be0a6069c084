package auth

import (
	"strings"
	"time"
)

// Role is one of the fixed application roles.
type Role string

const (
	RoleSuperAdmin  Role = "super-admin"
	RoleSchoolAdmin Role = "school-admin"
	RoleTeacher     Role = "teacher"
	RoleParent      Role = "parent"
	RoleStudent     Role = "student"
)

// DefaultRole is assigned when the provider does not supply a recognized role.
const DefaultRole = RoleSchoolAdmin

var roles = map[Role]struct{}{
	RoleSuperAdmin:  {},
	RoleSchoolAdmin: {},
	RoleTeacher:     {},
	RoleParent:      {},
	RoleStudent:     {},
}

// Valid reports whether r is one of the fixed roles. The comparison is
// case-sensitive.
func (r Role) Valid() bool {
	_, ok := roles[r]
	return ok
}

// ParseRole returns the role named by s, or DefaultRole when s is not an exact
// match for one of the fixed roles.
func ParseRole(s string) Role {
	if r := Role(s); r.Valid() {
		return r
	}
	return DefaultRole
}

// User is the normalized application identity.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Role        Role      `json:"role"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	PhoneNumber *string   `json:"phoneNumber,omitempty"`
	AvatarURL   *string   `json:"avatarUrl,omitempty"`
	SchoolID    *string   `json:"schoolId,omitempty"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// FullName joins the first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// HasRole returns true if the user holds any of the given roles.
func (u *User) HasRole(allowed ...Role) bool {
	for _, r := range allowed {
		if u.Role == r {
			return true
		}
	}
	return false
}

// IsAdmin returns true for super and school administrators.
func (u *User) IsAdmin() bool {
	return u.HasRole(RoleSuperAdmin, RoleSchoolAdmin)
}

// Identity is the raw identity record supplied by a provider.
type Identity struct {
	ID       string   `json:"id"`
	Email    string   `json:"email,omitempty"`
	Metadata Metadata `json:"user_metadata"`
}

// Metadata holds the optional profile attributes a provider may attach to an
// identity. Providers are inconsistent about key spelling, so each attribute
// has a snake_case and a camelCase slot; MapIdentity prefers snake_case.
type Metadata struct {
	Role *string `json:"role,omitempty"`

	FirstNameSnake *string `json:"first_name,omitempty"`
	FirstNameCamel *string `json:"firstName,omitempty"`
	LastNameSnake  *string `json:"last_name,omitempty"`
	LastNameCamel  *string `json:"lastName,omitempty"`

	PhoneNumberSnake *string `json:"phone_number,omitempty"`
	PhoneNumberCamel *string `json:"phoneNumber,omitempty"`
	AvatarURLSnake   *string `json:"avatar_url,omitempty"`
	AvatarURLCamel   *string `json:"avatarUrl,omitempty"`
	SchoolIDSnake    *string `json:"school_id,omitempty"`
	SchoolIDCamel    *string `json:"schoolId,omitempty"`

	IsActiveSnake *bool `json:"is_active,omitempty"`
	IsActiveCamel *bool `json:"isActive,omitempty"`

	CreatedAtSnake *string `json:"created_at,omitempty"`
	CreatedAtCamel *string `json:"createdAt,omitempty"`
	UpdatedAtSnake *string `json:"updated_at,omitempty"`
	UpdatedAtCamel *string `json:"updatedAt,omitempty"`
}

// Session is a provider session: an opaque token pair plus the identity it
// was issued for.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         Identity  `json:"user"`
}

// Expired reports whether the access token has expired at now, allowing for
// the given leeway.
func (s *Session) Expired(now time.Time, leeway time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(leeway).Before(s.ExpiresAt)
}
