package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/edustack/edustack/internal/auth"
	"github.com/edustack/edustack/internal/profile"
	"github.com/edustack/edustack/internal/pubsub"
)

type passwordGrant struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshGrant struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int64         `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"`
	User         auth.Identity `json:"user"`
}

func (t *tokenResponse) session() *auth.Session {
	return &auth.Session{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    time.Unix(t.ExpiresAt, 0).UTC(),
		User:         t.User,
	}
}

// profileRow is a users row as returned by the REST endpoint.
type profileRow struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	PhoneNumber *string   `json:"phone_number"`
	AvatarURL   *string   `json:"avatar_url"`
	SchoolID    *string   `json:"school_id"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (r *profileRow) user() auth.User {
	return auth.User{
		ID:          r.ID,
		Email:       r.Email,
		Role:        auth.ParseRole(r.Role),
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		PhoneNumber: r.PhoneNumber,
		AvatarURL:   r.AvatarURL,
		SchoolID:    r.SchoolID,
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// SignInWithPassword implements auth.Provider.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error) {
	var out tokenResponse
	_, err := c.send(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "",
		passwordGrant{Email: email, Password: password}, &out)
	if err != nil {
		return nil, err
	}

	sess := out.session()
	if err := c.file.Save(sess); err != nil {
		return nil, err
	}
	c.publish(ctx, auth.Event{Kind: auth.EventSignedIn, Session: sess})
	return sess, nil
}

// SignOut implements auth.Provider. The stored session is removed even when
// the server call fails.
func (c *Client) SignOut(ctx context.Context) error {
	sess, err := c.file.Load()
	if err != nil {
		slog.Warn("reading stored session", "error", err)
	}

	var callErr error
	if sess != nil {
		_, callErr = c.authorized(ctx, sess, func(token string) (*resty.Response, error) {
			return c.send(ctx, http.MethodPost, "/auth/v1/logout", token, nil, nil)
		})
		if errors.Is(callErr, ErrSessionExpired) {
			callErr = nil
		}
	}

	if err := c.file.Clear(); err != nil {
		return err
	}
	c.publish(ctx, auth.Event{Kind: auth.EventSignedOut})
	return callErr
}

// GetSession implements auth.Provider. An expired access token is refreshed
// first; a rejected refresh token clears the stored session.
func (c *Client) GetSession(ctx context.Context) (*auth.Session, error) {
	sess, err := c.file.Load()
	if err != nil || sess == nil {
		return nil, err
	}
	if !sess.Expired(c.now(), expiryLeeway) {
		return sess, nil
	}

	sess, err = c.refresh(ctx, sess)
	if errors.Is(err, ErrSessionExpired) {
		return nil, nil
	}
	return sess, err
}

// OnAuthStateChange implements auth.Provider.
func (c *Client) OnAuthStateChange(ctx context.Context) (auth.Subscription, error) {
	return pubsub.SubscribeAuthEvents(ctx, c.events, c.channel)
}

// GetProfile implements profile.Store using the REST endpoint.
func (c *Client) GetProfile(ctx context.Context, id string) (auth.User, error) {
	sess, err := c.file.Load()
	if err != nil {
		return auth.User{}, err
	}
	if sess == nil {
		return auth.User{}, ErrNoSession
	}

	var row profileRow
	_, err = c.authorized(ctx, sess, func(token string) (*resty.Response, error) {
		return c.send(ctx, http.MethodGet, "/rest/v1/users/"+url.PathEscape(id), token, nil, &row)
	})
	if err != nil {
		if statusOf(err) == http.StatusNotFound {
			return auth.User{}, profile.ErrNotFound
		}
		return auth.User{}, err
	}
	return row.user(), nil
}

// authorized runs call with the session's access token. A 401 triggers one
// refresh and one retry.
func (c *Client) authorized(ctx context.Context, sess *auth.Session, call func(token string) (*resty.Response, error)) (*resty.Response, error) {
	resp, err := call(sess.AccessToken)
	if statusOf(err) != http.StatusUnauthorized {
		return resp, err
	}

	fresh, err := c.refresh(ctx, sess)
	if err != nil {
		return nil, err
	}
	return call(fresh.AccessToken)
}

// refresh exchanges the refresh token of stale for a new session. If another
// caller already refreshed, the stored session is used instead.
func (c *Client) refresh(ctx context.Context, stale *auth.Session) (*auth.Session, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	current, err := c.file.Load()
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrSessionExpired
	}
	if current.AccessToken != stale.AccessToken && !current.Expired(c.now(), expiryLeeway) {
		return current, nil
	}

	var out tokenResponse
	_, err = c.send(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "",
		refreshGrant{RefreshToken: current.RefreshToken}, &out)
	if err != nil {
		if s := statusOf(err); s == http.StatusBadRequest || s == http.StatusUnauthorized {
			if cerr := c.file.Clear(); cerr != nil {
				slog.Warn("clearing rejected session", "error", cerr)
			}
			c.publish(ctx, auth.Event{Kind: auth.EventSignedOut})
			return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}
		return nil, fmt.Errorf("refreshing session: %w", err)
	}

	sess := out.session()
	if err := c.file.Save(sess); err != nil {
		return nil, err
	}
	c.publish(ctx, auth.Event{Kind: auth.EventTokenRefreshed, Session: sess})
	return sess, nil
}

func (c *Client) publish(ctx context.Context, ev auth.Event) {
	if err := pubsub.PublishAuthEvent(ctx, c.events, c.channel, ev); err != nil {
		slog.Warn("publishing auth event", "event", ev.Kind, "error", err)
	}
}
