// Package token issues and verifies HS256 access tokens.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/edustack/edustack/internal/auth"
)

const (
	DefaultAccessTTL = 15 * time.Minute
	issuer           = "edustack"
	accessTokenType  = "access"
)

var (
	ErrInvalid = errors.New("access token invalid")
	ErrExpired = errors.New("access token expired")
)

// Claims are the access-token claims.
type Claims struct {
	Email     string    `json:"email"`
	Role      auth.Role `json:"role"`
	TokenType string    `json:"typ"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies access tokens with a shared secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an Issuer. A ttl of zero uses DefaultAccessTTL.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultAccessTTL
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL returns the lifetime of issued tokens.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue signs an access token for u and returns it with its expiry.
func (i *Issuer) Issue(u auth.User) (string, time.Time, error) {
	if len(i.secret) == 0 {
		return "", time.Time{}, ErrInvalid
	}
	now := i.now().UTC()
	expiresAt := now.Add(i.ttl)
	claims := Claims{
		Email:     u.Email,
		Role:      u.Role,
		TokenType: accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse validates tokenString and returns its claims.
func (i *Issuer) Parse(tokenString string) (Claims, error) {
	if len(i.secret) == 0 || strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrInvalid
	}
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(i.now),
	)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, ErrInvalid
	}
	if claims.TokenType != accessTokenType || strings.TrimSpace(claims.Subject) == "" {
		return Claims{}, ErrInvalid
	}
	return claims, nil
}

// VerifyAccessToken implements auth.TokenVerifier.
func (i *Issuer) VerifyAccessToken(tokenString string) (*auth.User, error) {
	claims, err := i.Parse(tokenString)
	if err != nil {
		return nil, err
	}
	return &auth.User{
		ID:    claims.Subject,
		Email: claims.Email,
		Role:  auth.ParseRole(string(claims.Role)),
	}, nil
}
