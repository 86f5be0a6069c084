// Package postgres implements the session manager's provider port directly
// against the users database, for deployments that run the CLI next to the
// database instead of behind the identity server.
package postgres

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/edustack/edustack/internal/auth"
	"github.com/edustack/edustack/internal/identity"
	"github.com/edustack/edustack/internal/profile"
	"github.com/edustack/edustack/internal/provider/sessionfile"
	"github.com/edustack/edustack/internal/pubsub"
)

const (
	defaultChannel = "edustack:auth"
	expiryLeeway   = 30 * time.Second
)

// Provider issues sessions through an identity.Service and stores the
// current one in a session file.
type Provider struct {
	identity *identity.Service
	profiles profile.Store
	file     *sessionfile.File
	events   pubsub.Provider
	channel  string
	now      func() time.Time

	refreshMu sync.Mutex
}

// New creates a Provider. When events is nil an in-process provider is used.
func New(svc *identity.Service, profiles profile.Store, file *sessionfile.File, events pubsub.Provider, channel string) *Provider {
	if events == nil {
		events = pubsub.NewLocalProvider()
	}
	if channel == "" {
		channel = defaultChannel
	}
	return &Provider{
		identity: svc,
		profiles: profiles,
		file:     file,
		events:   events,
		channel:  channel,
		now:      time.Now,
	}
}

// SignInWithPassword implements auth.Provider.
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error) {
	g, err := p.identity.PasswordGrant(ctx, email, password)
	if err != nil {
		return nil, err
	}
	sess := g.Session()
	if err := p.file.Save(sess); err != nil {
		return nil, err
	}
	p.publish(ctx, auth.Event{Kind: auth.EventSignedIn, Session: sess})
	return sess, nil
}

// SignOut implements auth.Provider. Every refresh session of the user is
// revoked; the local session is removed even when revocation fails.
func (p *Provider) SignOut(ctx context.Context) error {
	sess, err := p.file.Load()
	if err != nil {
		slog.Warn("reading stored session", "error", err)
	}

	var revokeErr error
	if sess != nil && sess.User.ID != "" {
		revokeErr = p.identity.SignOut(ctx, sess.User.ID)
	}

	if err := p.file.Clear(); err != nil {
		return err
	}
	p.publish(ctx, auth.Event{Kind: auth.EventSignedOut})
	return revokeErr
}

// GetSession implements auth.Provider.
func (p *Provider) GetSession(ctx context.Context) (*auth.Session, error) {
	sess, err := p.file.Load()
	if err != nil || sess == nil {
		return nil, err
	}
	if !sess.Expired(p.now(), expiryLeeway) {
		return sess, nil
	}
	return p.refresh(ctx, sess)
}

// OnAuthStateChange implements auth.Provider.
func (p *Provider) OnAuthStateChange(ctx context.Context) (auth.Subscription, error) {
	return pubsub.SubscribeAuthEvents(ctx, p.events, p.channel)
}

// GetProfile implements profile.Store.
func (p *Provider) GetProfile(ctx context.Context, id string) (auth.User, error) {
	return p.profiles.GetProfile(ctx, id)
}

func (p *Provider) refresh(ctx context.Context, stale *auth.Session) (*auth.Session, error) {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	current, err := p.file.Load()
	if err != nil || current == nil {
		return nil, err
	}
	if current.AccessToken != stale.AccessToken && !current.Expired(p.now(), expiryLeeway) {
		return current, nil
	}

	g, err := p.identity.RefreshGrant(ctx, current.RefreshToken)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidRefreshToken) || errors.Is(err, identity.ErrInactiveUser) {
			if cerr := p.file.Clear(); cerr != nil {
				slog.Warn("clearing rejected session", "error", cerr)
			}
			p.publish(ctx, auth.Event{Kind: auth.EventSignedOut})
			return nil, nil
		}
		return nil, err
	}

	sess := g.Session()
	if err := p.file.Save(sess); err != nil {
		return nil, err
	}
	p.publish(ctx, auth.Event{Kind: auth.EventTokenRefreshed, Session: sess})
	return sess, nil
}

func (p *Provider) publish(ctx context.Context, ev auth.Event) {
	if err := pubsub.PublishAuthEvent(ctx, p.events, p.channel, ev); err != nil {
		slog.Warn("publishing auth event", "event", ev.Kind, "error", err)
	}
}
