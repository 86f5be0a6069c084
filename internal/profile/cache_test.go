package profile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/edustack/edustack/internal/auth"
)

// --- mock store ---

type mockStore struct {
	mu    sync.Mutex
	users map[string]auth.User
	err   error
	delay time.Duration
	calls atomic.Int32
}

func newMockStore(users ...auth.User) *mockStore {
	m := &mockStore{users: make(map[string]auth.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockStore) GetProfile(_ context.Context, id string) (auth.User, error) {
	m.calls.Add(1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return auth.User{}, m.err
	}
	u, ok := m.users[id]
	if !ok {
		return auth.User{}, ErrNotFound
	}
	return u, nil
}

// --- mock observer ---

type countingObserver struct {
	hits, misses atomic.Int32
}

func (o *countingObserver) CacheHit()  { o.hits.Add(1) }
func (o *countingObserver) CacheMiss() { o.misses.Add(1) }

func newCache(t *testing.T, store Store, opts ...Option) *Cache {
	t.Helper()
	c, err := New(store, 16, opts...)
	if err != nil {
		t.Fatalf("creating cache: %v", err)
	}
	return c
}

func TestCache_GetServesSecondCallFromCache(t *testing.T) {
	store := newMockStore(auth.User{ID: "u1", Email: "t@school.edu", Role: auth.RoleTeacher})
	obs := &countingObserver{}
	c := newCache(t, store, WithObserver(obs))

	for i := 0; i < 2; i++ {
		u, ok := c.Get(context.Background(), "u1")
		if !ok {
			t.Fatalf("call %d: expected profile", i)
		}
		if u.Email != "t@school.edu" {
			t.Errorf("call %d: unexpected email %q", i, u.Email)
		}
	}

	if n := store.calls.Load(); n != 1 {
		t.Errorf("expected 1 store query, got %d", n)
	}
	if obs.hits.Load() != 1 || obs.misses.Load() != 1 {
		t.Errorf("expected 1 hit and 1 miss, got %d/%d", obs.hits.Load(), obs.misses.Load())
	}
}

func TestCache_ConcurrentMissesShareQuery(t *testing.T) {
	store := newMockStore(auth.User{ID: "u1"})
	store.delay = 30 * time.Millisecond
	c := newCache(t, store)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := c.Get(context.Background(), "u1"); !ok {
				t.Error("expected profile")
			}
		}()
	}
	wg.Wait()

	if n := store.calls.Load(); n != 1 {
		t.Errorf("expected 1 store query, got %d", n)
	}
}

func TestCache_NotFound(t *testing.T) {
	store := newMockStore()
	c := newCache(t, store)

	if _, ok := c.Get(context.Background(), "missing"); ok {
		t.Error("expected not found")
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", c.Len())
	}
}

func TestCache_StoreErrorIsSwallowed(t *testing.T) {
	store := newMockStore(auth.User{ID: "u1"})
	store.err = errors.New("connection refused")
	c := newCache(t, store)

	if _, ok := c.Get(context.Background(), "u1"); ok {
		t.Error("expected store failure to report not found")
	}

	store.mu.Lock()
	store.err = nil
	store.mu.Unlock()

	if _, ok := c.Get(context.Background(), "u1"); !ok {
		t.Error("expected failed lookup not to be cached")
	}
	if n := store.calls.Load(); n != 2 {
		t.Errorf("expected 2 store queries, got %d", n)
	}
}

func TestCache_ClearForcesRequery(t *testing.T) {
	store := newMockStore(auth.User{ID: "u1"})
	c := newCache(t, store)

	c.Get(context.Background(), "u1")
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("expected empty cache after clear, got %d", c.Len())
	}
	c.Get(context.Background(), "u1")

	if n := store.calls.Load(); n != 2 {
		t.Errorf("expected 2 store queries, got %d", n)
	}
}

func TestCache_ClearDuringLookupDoesNotRepopulate(t *testing.T) {
	store := newMockStore(auth.User{ID: "u1"})
	store.delay = 50 * time.Millisecond
	c := newCache(t, store)

	done := make(chan bool)
	go func() {
		_, ok := c.Get(context.Background(), "u1")
		done <- ok
	}()

	deadline := time.Now().Add(time.Second)
	for store.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("lookup never reached the store")
		}
		time.Sleep(time.Millisecond)
	}
	c.Clear()

	if ok := <-done; !ok {
		t.Error("expected in-flight caller to receive its profile")
	}
	if c.Len() != 0 {
		t.Fatalf("expected cleared cache to stay empty, got %d entries", c.Len())
	}

	if _, ok := c.Get(context.Background(), "u1"); !ok {
		t.Fatal("expected profile")
	}
	if n := store.calls.Load(); n != 2 {
		t.Errorf("expected lookup after clear to query the store, got %d queries", n)
	}
}

func TestCache_Bounded(t *testing.T) {
	store := newMockStore(auth.User{ID: "a"}, auth.User{ID: "b"}, auth.User{ID: "c"})
	c, err := New(store, 2)
	if err != nil {
		t.Fatalf("creating cache: %v", err)
	}

	for _, id := range []string{"a", "b", "c"} {
		c.Get(context.Background(), id)
	}
	if c.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", c.Len())
	}

	// "a" was evicted as least recently used.
	c.Get(context.Background(), "a")
	if n := store.calls.Load(); n != 4 {
		t.Errorf("expected 4 store queries, got %d", n)
	}
}

func TestNew_DefaultSize(t *testing.T) {
	c, err := New(newMockStore(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c == nil {
		t.Fatal("expected cache")
	}
}
