// Package profile caches authoritative user profiles read from the backing
// store.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/edustack/edustack/internal/auth"
)

// DefaultSize is the number of profiles kept when no size is configured.
const DefaultSize = 1024

// ErrNotFound is returned by a Store when no row matches the id.
var ErrNotFound = errors.New("profile not found")

// Store reads a single profile row by user id.
type Store interface {
	GetProfile(ctx context.Context, id string) (auth.User, error)
}

// Observer receives cache hit and miss notifications.
type Observer interface {
	CacheHit()
	CacheMiss()
}

// Cache is a bounded in-memory map from user id to profile. It is safe for
// concurrent use, and concurrent misses for the same id share one store query.
type Cache struct {
	store    Store
	entries  *lru.Cache[string, auth.User]
	group    singleflight.Group
	observer Observer
	// mu orders Clear against fills. epoch is bumped by Clear; fills started
	// under an older epoch are not stored.
	mu    sync.Mutex
	epoch uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithObserver reports hits and misses to o.
func WithObserver(o Observer) Option {
	return func(c *Cache) { c.observer = o }
}

// New creates a Cache holding at most size profiles. A size below one uses
// DefaultSize.
func New(store Store, size int, opts ...Option) (*Cache, error) {
	if size < 1 {
		size = DefaultSize
	}
	entries, err := lru.New[string, auth.User](size)
	if err != nil {
		return nil, fmt.Errorf("creating profile cache: %w", err)
	}
	c := &Cache{store: store, entries: entries}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get returns the profile for id, querying the store on a miss. The second
// return value is false when the store has no row or the query failed; store
// failures are logged and never returned.
func (c *Cache) Get(ctx context.Context, id string) (auth.User, bool) {
	if u, ok := c.entries.Get(id); ok {
		if c.observer != nil {
			c.observer.CacheHit()
		}
		return u, true
	}
	if c.observer != nil {
		c.observer.CacheMiss()
	}

	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()
	key := strconv.FormatUint(epoch, 10) + "/" + id
	v, err, _ := c.group.Do(key, func() (any, error) {
		if u, ok := c.entries.Get(id); ok {
			return u, nil
		}
		u, err := c.store.GetProfile(ctx, id)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.epoch == epoch {
			c.entries.Add(id, u)
		}
		c.mu.Unlock()
		return u, nil
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("profile lookup failed", "user_id", id, "error", &auth.ProviderError{Op: "get profile", Err: err})
		}
		return auth.User{}, false
	}
	return v.(auth.User), true
}

// Clear drops every cached profile. Lookups already in flight still return
// their result to their callers but no longer populate the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.epoch++
	c.entries.Purge()
	c.mu.Unlock()
}

// Len returns the number of cached profiles.
func (c *Cache) Len() int {
	return c.entries.Len()
}
