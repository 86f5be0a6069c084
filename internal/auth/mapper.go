package auth

import (
	"strings"
	"time"
)

// fallbackName is used when neither metadata nor the email yield a name.
const fallbackName = "User"

// MapIdentity converts a provider identity into the normalized User. Each
// attribute is resolved from the snake_case metadata key, then the camelCase
// key, then a computed fallback, then a default. It never fails, and for a
// given identity and now it always returns the same User.
func MapIdentity(id Identity, now time.Time) User {
	md := id.Metadata

	u := User{
		ID:        id.ID,
		Email:     id.Email,
		Role:      DefaultRole,
		FirstName: firstString(md.FirstNameSnake, md.FirstNameCamel),
		LastName:  firstString(md.LastNameSnake, md.LastNameCamel),
		IsActive:  true,
		CreatedAt: firstTime(now, md.CreatedAtSnake, md.CreatedAtCamel),
		UpdatedAt: firstTime(now, md.UpdatedAtSnake, md.UpdatedAtCamel),
	}

	if md.Role != nil {
		u.Role = ParseRole(*md.Role)
	}

	if u.FirstName == "" {
		u.FirstName = emailLocalPart(id.Email)
	}
	if u.FirstName == "" {
		u.FirstName = fallbackName
	}
	if u.LastName == "" {
		u.LastName = fallbackName
	}

	u.PhoneNumber = optionalString(md.PhoneNumberSnake, md.PhoneNumberCamel)
	u.AvatarURL = optionalString(md.AvatarURLSnake, md.AvatarURLCamel)
	u.SchoolID = optionalString(md.SchoolIDSnake, md.SchoolIDCamel)

	switch {
	case md.IsActiveSnake != nil:
		u.IsActive = *md.IsActiveSnake
	case md.IsActiveCamel != nil:
		u.IsActive = *md.IsActiveCamel
	}

	return u
}

func firstString(candidates ...*string) string {
	for _, c := range candidates {
		if c != nil && strings.TrimSpace(*c) != "" {
			return *c
		}
	}
	return ""
}

func optionalString(candidates ...*string) *string {
	v := firstString(candidates...)
	if v == "" {
		return nil
	}
	return &v
}

// firstTime returns the first candidate that parses as RFC 3339, or def.
func firstTime(def time.Time, candidates ...*string) time.Time {
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, *c); err == nil {
			return t
		}
	}
	return def
}

// emailLocalPart returns the text before the first "@", or the whole trimmed
// email when it has none.
func emailLocalPart(email string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	return local
}
