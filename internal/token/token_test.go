package token

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/edustack/edustack/internal/auth"
)

func TestIssuer_IssueAndVerify(t *testing.T) {
	iss := NewIssuer("secret", time.Minute)
	u := auth.User{ID: "u1", Email: "t@school.edu", Role: auth.RoleTeacher}

	tok, expiresAt, err := iss.Issue(u)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(expiresAt) > time.Minute || time.Until(expiresAt) <= 0 {
		t.Errorf("unexpected expiry %v", expiresAt)
	}

	got, err := iss.VerifyAccessToken(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.ID != "u1" || got.Email != "t@school.edu" || got.Role != auth.RoleTeacher {
		t.Errorf("unexpected user %+v", got)
	}
}

func TestIssuer_Expired(t *testing.T) {
	iss := NewIssuer("secret", time.Minute)
	iss.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	tok, _, err := iss.Issue(auth.User{ID: "u1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	iss.now = time.Now
	if _, err := iss.Parse(tok); !errors.Is(err, ErrExpired) {
		t.Errorf("expected ErrExpired, got %v", err)
	}
}

func TestIssuer_Rejects(t *testing.T) {
	iss := NewIssuer("secret", time.Minute)
	other := NewIssuer("other-secret", time.Minute)
	foreign, _, err := other.Issue(auth.User{ID: "u1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	wrongType, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		TokenType: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "not.a.jwt"},
		{name: "wrong secret", token: foreign},
		{name: "wrong type", token: wrongType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := iss.VerifyAccessToken(tt.token); !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestIssuer_UnknownRoleDefaults(t *testing.T) {
	iss := NewIssuer("secret", time.Minute)
	tok, _, err := iss.Issue(auth.User{ID: "u1", Role: "caretaker"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	u, err := iss.VerifyAccessToken(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if u.Role != auth.DefaultRole {
		t.Errorf("expected default role, got %q", u.Role)
	}
}

func TestIssuer_NoSecret(t *testing.T) {
	iss := NewIssuer("", 0)
	if _, _, err := iss.Issue(auth.User{ID: "u1"}); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
	if iss.TTL() != DefaultAccessTTL {
		t.Errorf("expected default ttl, got %v", iss.TTL())
	}
}
