// Package session holds the authenticated session manager: it restores and
// tracks the current user, runs login and logout against an identity
// provider, and upgrades best-effort users to authoritative profiles.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/edustack/edustack/internal/auth"
	"github.com/edustack/edustack/internal/profile"
	"github.com/edustack/edustack/internal/timeout"
)

const (
	DefaultSignInTimeout  = 10 * time.Second
	DefaultRestoreTimeout = 5 * time.Second
	DefaultProfileTimeout = 3 * time.Second
)

// Guarded operation names reported to a TimeoutObserver.
const (
	OpSignIn  = "sign_in"
	OpRestore = "restore"
	OpProfile = "profile"
)

// Config holds the time budgets for guarded provider calls. Zero values use
// the defaults.
type Config struct {
	SignInTimeout  time.Duration
	RestoreTimeout time.Duration
	ProfileTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.SignInTimeout <= 0 {
		c.SignInTimeout = DefaultSignInTimeout
	}
	if c.RestoreTimeout <= 0 {
		c.RestoreTimeout = DefaultRestoreTimeout
	}
	if c.ProfileTimeout <= 0 {
		c.ProfileTimeout = DefaultProfileTimeout
	}
	return c
}

// State is a point-in-time copy of the manager's state.
type State struct {
	User    *auth.User
	Loading bool
}

// Authenticated reports whether a user is signed in.
func (s State) Authenticated() bool { return s.User != nil }

// TimeoutObserver is told when a guarded call exceeds its budget.
type TimeoutObserver interface {
	GuardTimedOut(op string)
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the clock passed to the identity mapper.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithOnChange registers a hook called with the new state after every
// transition. The hook runs on the goroutine that caused the transition and
// must not call back into the Manager's mutating methods.
func WithOnChange(fn func(State)) Option {
	return func(m *Manager) { m.onChange = fn }
}

// WithTimeoutObserver reports guard timeouts to o.
func WithTimeoutObserver(o TimeoutObserver) Option {
	return func(m *Manager) { m.timeouts = o }
}

// Manager coordinates the provider, the identity mapper and the profile
// cache. It is safe for concurrent use.
type Manager struct {
	provider auth.Provider
	cache    *profile.Cache
	cfg      Config
	now      func() time.Time
	onChange func(State)
	timeouts TimeoutObserver

	// base scopes background enrichment; cancelled by Close.
	base   context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	current *auth.User
	loading int
	gen     uint64
	sub     auth.Subscription
	closed  bool

	listenWG sync.WaitGroup
	enrichWG sync.WaitGroup
}

// New creates a Manager. Call Start to restore any existing session and
// subscribe to provider events, and Close to release the subscription.
func New(provider auth.Provider, cache *profile.Cache, cfg Config, opts ...Option) *Manager {
	base, cancel := context.WithCancel(context.Background())
	m := &Manager{
		provider: provider,
		cache:    cache,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		base:     base,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start restores an existing session, if any, and subscribes to the
// provider's auth-state stream. Restore failures are logged and leave the
// manager unauthenticated; only a failure to subscribe is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.beginLoading()
	sess, err := timeout.Do(ctx, m.cfg.RestoreTimeout, "session restore timed out", m.provider.GetSession)
	switch {
	case err != nil:
		m.observeTimeout(OpRestore, err)
		slog.Warn("session restore failed", "error", err)
	case sess == nil || sess.User.ID == "":
		slog.Debug("no session to restore")
	default:
		m.hydrate(sess.User)
	}
	m.endLoading()

	sub, err := m.provider.OnAuthStateChange(ctx)
	if err != nil {
		return fmt.Errorf("subscribing to auth state: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = sub.Close()
		return nil
	}
	m.sub = sub
	m.listenWG.Add(1)
	m.mu.Unlock()

	go m.listen(sub)
	return nil
}

// Login validates the credentials, signs in through the provider and sets the
// current user. The returned user is the best-effort identity; the
// authoritative profile replaces it asynchronously.
func (m *Manager) Login(ctx context.Context, email, password string) (auth.User, error) {
	if err := auth.ValidateCredentials(email, password); err != nil {
		return auth.User{}, err
	}

	m.beginLoading()
	defer m.endLoading()

	sess, err := timeout.Do(ctx, m.cfg.SignInTimeout, "sign-in timed out", func(ctx context.Context) (*auth.Session, error) {
		return m.provider.SignInWithPassword(ctx, email, password)
	})
	if err != nil {
		if errors.Is(err, auth.ErrTimeout) {
			m.observeTimeout(OpSignIn, err)
			return auth.User{}, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return auth.User{}, ctxErr
		}
		return auth.User{}, fmt.Errorf("%w: %w", auth.ErrAuthenticationFailed, err)
	}
	if sess == nil || sess.User.ID == "" {
		return auth.User{}, fmt.Errorf("%w: provider returned no identity", auth.ErrAuthenticationFailed)
	}

	return m.hydrate(sess.User), nil
}

// Logout signs out through the provider. Local state and the profile cache
// are cleared whatever the provider returns; provider errors are logged.
// Calling Logout when signed out is a no-op apart from the provider call.
func (m *Manager) Logout(ctx context.Context) {
	m.beginLoading()
	defer m.endLoading()
	defer m.reset()

	if err := m.provider.SignOut(ctx); err != nil {
		slog.Warn("sign out failed", "error", &auth.ProviderError{Op: "sign out", Err: err})
	}
}

// Current returns a copy of the current user, or nil when signed out.
func (m *Manager) Current() *auth.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyUser(m.current)
}

// IsLoading reports whether a restore, login or logout is in progress.
func (m *Manager) IsLoading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading > 0
}

// Snapshot returns the current state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Wait blocks until in-flight profile enrichment has finished.
func (m *Manager) Wait() {
	m.enrichWG.Wait()
}

// Close unsubscribes from provider events and waits for the event loop and
// any in-flight enrichment to return. It is safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sub := m.sub
	m.sub = nil
	m.mu.Unlock()

	var err error
	if sub != nil {
		if cerr := sub.Close(); cerr != nil {
			err = fmt.Errorf("closing auth subscription: %w", cerr)
		}
	}
	m.cancel()
	m.listenWG.Wait()
	m.enrichWG.Wait()
	return err
}

func (m *Manager) listen(sub auth.Subscription) {
	defer m.listenWG.Done()
	for ev := range sub.Events() {
		m.handleEvent(ev)
	}
}

func (m *Manager) handleEvent(ev auth.Event) {
	switch ev.Kind {
	case auth.EventSignedIn, auth.EventTokenRefreshed, auth.EventUserUpdated:
		if ev.Session == nil || ev.Session.User.ID == "" {
			slog.Debug("ignoring auth event without identity", "event", ev.Kind)
			return
		}
		m.hydrate(ev.Session.User)
	case auth.EventSignedOut:
		m.reset()
	default:
		slog.Debug("ignoring unknown auth event", "event", ev.Kind)
	}
}

// hydrate makes id the current user and starts enrichment. A best-effort
// user is set only when the identity differs from the current user, so a
// repeat event for the same user keeps the profile already shown.
func (m *Manager) hydrate(id auth.Identity) auth.User {
	best := auth.MapIdentity(id, m.now())

	m.mu.Lock()
	m.gen++
	gen := m.gen
	if m.current == nil || m.current.ID != best.ID {
		m.current = &best
	}
	result := *m.current
	spawn := !m.closed
	if spawn {
		m.enrichWG.Add(1)
	}
	state := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(state)
	if spawn {
		go m.enrich(gen, best.ID)
	}
	return result
}

func (m *Manager) enrich(gen uint64, id string) {
	defer m.enrichWG.Done()

	u, err := timeout.Do(m.base, m.cfg.ProfileTimeout, "profile fetch timed out", func(ctx context.Context) (auth.User, error) {
		u, ok := m.cache.Get(ctx, id)
		if !ok {
			return auth.User{}, profile.ErrNotFound
		}
		return u, nil
	})
	if err != nil {
		m.observeTimeout(OpProfile, err)
		if !errors.Is(err, profile.ErrNotFound) && !errors.Is(err, context.Canceled) {
			slog.Warn("profile enrichment failed", "user_id", id, "error", err)
		}
		return
	}
	if !u.Role.Valid() {
		u.Role = auth.DefaultRole
	}

	m.mu.Lock()
	if m.gen != gen || m.current == nil || m.current.ID != id || u.ID != id {
		m.mu.Unlock()
		slog.Debug("discarding stale profile", "user_id", id)
		return
	}
	m.current = &u
	state := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(state)
}

// reset clears the current user and the profile cache.
func (m *Manager) reset() {
	m.mu.Lock()
	m.gen++
	m.current = nil
	state := m.snapshotLocked()
	m.mu.Unlock()

	m.cache.Clear()
	m.notify(state)
}

func (m *Manager) beginLoading() {
	m.mu.Lock()
	m.loading++
	state := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(state)
}

func (m *Manager) endLoading() {
	m.mu.Lock()
	m.loading--
	state := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(state)
}

func (m *Manager) snapshotLocked() State {
	return State{User: copyUser(m.current), Loading: m.loading > 0}
}

func (m *Manager) notify(s State) {
	if m.onChange != nil {
		m.onChange(s)
	}
}

func (m *Manager) observeTimeout(op string, err error) {
	if m.timeouts != nil && errors.Is(err, auth.ErrTimeout) {
		m.timeouts.GuardTimedOut(op)
	}
}

func copyUser(u *auth.User) *auth.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
