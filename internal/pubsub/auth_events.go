package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/edustack/edustack/internal/auth"
)

// PublishAuthEvent encodes ev as JSON and publishes it on channel.
func PublishAuthEvent(ctx context.Context, p Provider, channel string, ev auth.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling auth event: %w", err)
	}
	return p.Publish(ctx, channel, payload)
}

// SubscribeAuthEvents subscribes to channel and decodes each message into an
// auth.Event. Malformed messages are logged and skipped.
func SubscribeAuthEvents(ctx context.Context, p Provider, channel string) (auth.Subscription, error) {
	sub, err := p.Subscribe(ctx, channel)
	if err != nil {
		return nil, err
	}
	events := make(chan auth.Event, localBuffer)
	go func() {
		defer close(events)
		for msg := range sub.Messages() {
			var ev auth.Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				slog.Warn("skipping malformed auth event", "channel", channel, "error", err)
				continue
			}
			events <- ev
		}
	}()
	return &authEventSubscription{sub: sub, events: events}, nil
}

type authEventSubscription struct {
	sub    Subscription
	events chan auth.Event
}

func (s *authEventSubscription) Events() <-chan auth.Event {
	return s.events
}

func (s *authEventSubscription) Close() error {
	return s.sub.Close()
}
