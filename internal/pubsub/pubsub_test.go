package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/edustack/edustack/internal/auth"
)

func newRedisProvider(t *testing.T) *RedisProvider {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	p, err := NewRedisProvider(client)
	if err != nil {
		t.Fatalf("creating provider: %v", err)
	}
	return p
}

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func assertClosed(t *testing.T, ch <-chan Message) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("expected channel to be closed")
		}
	}
}

func TestNewRedisProvider_NilClient(t *testing.T) {
	if _, err := NewRedisProvider(nil); err == nil {
		t.Fatal("expected error for nil client")
	}
}

func TestProviders_PublishSubscribe(t *testing.T) {
	providers := map[string]Provider{
		"redis": newRedisProvider(t),
		"local": NewLocalProvider(),
	}

	for name, p := range providers {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sub, err := p.Subscribe(ctx, "auth:test")
			if err != nil {
				t.Fatalf("subscribe: %v", err)
			}

			if err := p.Publish(ctx, "auth:test", []byte("hello")); err != nil {
				t.Fatalf("publish: %v", err)
			}
			if err := p.Publish(ctx, "auth:other", []byte("ignored")); err != nil {
				t.Fatalf("publish: %v", err)
			}
			if err := p.Publish(ctx, "auth:test", []byte("world")); err != nil {
				t.Fatalf("publish: %v", err)
			}

			if got := string(receive(t, sub.Messages()).Payload); got != "hello" {
				t.Errorf("expected hello, got %q", got)
			}
			if got := string(receive(t, sub.Messages()).Payload); got != "world" {
				t.Errorf("expected world, got %q", got)
			}

			if err := sub.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}
			if err := sub.Close(); err != nil {
				t.Fatalf("second close: %v", err)
			}
			assertClosed(t, sub.Messages())
		})
	}
}

func TestLocalProvider_PublishWithoutSubscribers(t *testing.T) {
	p := NewLocalProvider()
	if err := p.Publish(context.Background(), "nobody", []byte("x")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthEvents_RoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newRedisProvider(t)

	sub, err := SubscribeAuthEvents(ctx, p, "edustack:auth")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	// A malformed payload is skipped.
	if err := p.Publish(ctx, "edustack:auth", []byte("{not json")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	role := "teacher"
	want := auth.Event{
		Kind: auth.EventSignedIn,
		Session: &auth.Session{
			AccessToken: "access",
			User:        auth.Identity{ID: "u1", Email: "t@school.edu", Metadata: auth.Metadata{Role: &role}},
		},
	}
	if err := PublishAuthEvent(ctx, p, "edustack:auth", want); err != nil {
		t.Fatalf("publish event: %v", err)
	}
	if err := PublishAuthEvent(ctx, p, "edustack:auth", auth.Event{Kind: auth.EventSignedOut}); err != nil {
		t.Fatalf("publish event: %v", err)
	}

	select {
	case ev := <-sub.Events():
		if ev.Kind != auth.EventSignedIn {
			t.Errorf("expected SIGNED_IN, got %q", ev.Kind)
		}
		if ev.Session == nil || ev.Session.User.ID != "u1" {
			t.Fatalf("unexpected session %+v", ev.Session)
		}
		if ev.Session.User.Metadata.Role == nil || *ev.Session.User.Metadata.Role != "teacher" {
			t.Errorf("expected role metadata to survive encoding")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case ev := <-sub.Events():
		if ev.Kind != auth.EventSignedOut || ev.Session != nil {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestAuthEvents_CloseEndsStream(t *testing.T) {
	p := NewLocalProvider()
	sub, err := SubscribeAuthEvents(context.Background(), p, "edustack:auth")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Error("expected events channel to be closed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed")
	}
}
