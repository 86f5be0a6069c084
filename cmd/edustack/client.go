package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/edustack/edustack/internal/auth"
	"github.com/edustack/edustack/internal/config"
	"github.com/edustack/edustack/internal/crypto"
	"github.com/edustack/edustack/internal/identity"
	"github.com/edustack/edustack/internal/metrics"
	"github.com/edustack/edustack/internal/profile"
	"github.com/edustack/edustack/internal/provider/postgres"
	"github.com/edustack/edustack/internal/provider/remote"
	"github.com/edustack/edustack/internal/provider/sessionfile"
	"github.com/edustack/edustack/internal/pubsub"
	"github.com/edustack/edustack/internal/session"
	"github.com/edustack/edustack/internal/token"
	"github.com/edustack/edustack/internal/user"
)

// sessionProvider is what the client commands need from a provider.
type sessionProvider interface {
	auth.Provider
	profile.Store
}

// sessionClient bundles a started session manager with the resources it
// holds open.
type sessionClient struct {
	manager *session.Manager
	closers []func()
}

func (c *sessionClient) Close() {
	if err := c.manager.Close(); err != nil {
		slog.Warn("closing session manager", "error", err)
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// newSessionClient builds the configured provider and a session manager on
// top of it, restores any stored session and subscribes to auth events.
func newSessionClient(ctx context.Context) (*sessionClient, error) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &sessionClient{}
	fail := func(err error) (*sessionClient, error) {
		for i := len(c.closers) - 1; i >= 0; i-- {
			c.closers[i]()
		}
		return nil, err
	}

	cipher, err := crypto.NewCipher(cfg.Session.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("session encryption key: %w", err)
	}
	file := sessionfile.New(cfg.Session.File, cipher)

	events, err := newEventProvider(cfg)
	if err != nil {
		return nil, err
	}
	if closer, ok := events.(interface{ Close() error }); ok {
		c.closers = append(c.closers, func() { _ = closer.Close() })
	}

	var provider sessionProvider
	switch cfg.Provider.Kind {
	case config.ProviderPostgres:
		p, closePool, err := newPostgresProvider(ctx, cfg, file, events)
		if err != nil {
			return fail(err)
		}
		c.closers = append(c.closers, closePool)
		provider = p
	default:
		p, err := remote.New(remote.Config{
			BaseURL: cfg.Provider.BaseURL,
			Timeout: cfg.Provider.Timeout,
			Channel: cfg.Session.Channel,
		}, file, events)
		if err != nil {
			return fail(err)
		}
		provider = p
	}

	m := metrics.New()
	cache, err := profile.New(provider, cfg.Session.CacheSize, profile.WithObserver(m))
	if err != nil {
		return fail(err)
	}

	c.manager = session.New(provider, cache, session.Config{
		SignInTimeout:  cfg.Session.SignInTimeout,
		RestoreTimeout: cfg.Session.RestoreTimeout,
		ProfileTimeout: cfg.Session.ProfileTimeout,
	}, session.WithTimeoutObserver(m))

	if err := c.manager.Start(ctx); err != nil {
		_ = c.manager.Close()
		return fail(err)
	}
	return c, nil
}

// newEventProvider returns a Redis-backed provider when a Redis URL is
// configured so every process sharing the session file sees auth events.
func newEventProvider(cfg *config.Config) (pubsub.Provider, error) {
	if cfg.Redis.URL == "" {
		return pubsub.NewLocalProvider(), nil
	}
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return pubsub.NewRedisProvider(redis.NewClient(opts))
}

func newPostgresProvider(ctx context.Context, cfg *config.Config, file *sessionfile.File, events pubsub.Provider) (*postgres.Provider, func(), error) {
	if err := cfg.RequireJWTSecret(); err != nil {
		return nil, nil, err
	}
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}

	users := user.NewStore(pool)
	issuer := token.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	svc := identity.NewService(users, issuer, cfg.Auth.RefreshTokenTTL)
	return postgres.New(svc, users, file, events, cfg.Session.Channel), pool.Close, nil
}

func printUser(u *auth.User) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(u)
}
