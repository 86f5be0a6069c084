// Package identity implements the token grants shared by the identity server
// and the in-process PostgreSQL provider.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edustack/edustack/internal/auth"
	"github.com/edustack/edustack/internal/token"
	"github.com/edustack/edustack/internal/user"
)

// DefaultRefreshTTL is how long a refresh session lives.
const DefaultRefreshTTL = 7 * 24 * time.Hour

var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrInactiveUser        = errors.New("user is inactive")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

// Store is the subset of user.Store used by Service.
type Store interface {
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	GetByID(ctx context.Context, id string) (*user.User, error)
	CreateSession(ctx context.Context, userID string, ttl time.Duration) (string, *user.Session, error)
	ConsumeSession(ctx context.Context, plaintext string) (string, error)
	DeleteSession(ctx context.Context, plaintext string) error
	DeleteUserSessions(ctx context.Context, userID string) (int64, error)
}

// Grant is an issued token pair.
type Grant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	ExpiresAt    time.Time
	User         *user.User
}

// Session converts the grant into a provider session.
func (g *Grant) Session() *auth.Session {
	return &auth.Session{
		AccessToken:  g.AccessToken,
		RefreshToken: g.RefreshToken,
		ExpiresAt:    g.ExpiresAt,
		User:         g.User.Identity(),
	}
}

// Service issues and revokes token pairs.
type Service struct {
	store      Store
	issuer     *token.Issuer
	refreshTTL time.Duration
}

// NewService creates a Service. A refreshTTL of zero uses DefaultRefreshTTL.
func NewService(store Store, issuer *token.Issuer, refreshTTL time.Duration) *Service {
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &Service{store: store, issuer: issuer, refreshTTL: refreshTTL}
}

// PasswordGrant checks the credentials and issues a new token pair.
func (s *Service) PasswordGrant(ctx context.Context, email, password string) (*Grant, error) {
	u, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.CheckPassword(u, password) {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrInactiveUser
	}
	return s.issue(ctx, u)
}

// RefreshGrant consumes a refresh token and issues a new pair. Each refresh
// token works once.
func (s *Service) RefreshGrant(ctx context.Context, refreshToken string) (*Grant, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	userID, err := s.store.ConsumeSession(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrInactiveUser
	}
	return s.issue(ctx, u)
}

// RevokeRefreshToken deletes a single refresh session.
func (s *Service) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	return s.store.DeleteSession(ctx, refreshToken)
}

// SignOut deletes every refresh session of the user.
func (s *Service) SignOut(ctx context.Context, userID string) error {
	_, err := s.store.DeleteUserSessions(ctx, userID)
	return err
}

func (s *Service) issue(ctx context.Context, u *user.User) (*Grant, error) {
	access, expiresAt, err := s.issuer.Issue(u.Profile())
	if err != nil {
		return nil, fmt.Errorf("issuing access token: %w", err)
	}
	refresh, _, err := s.store.CreateSession(ctx, u.ID, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &Grant{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    s.issuer.TTL(),
		ExpiresAt:    expiresAt,
		User:         u,
	}, nil
}
