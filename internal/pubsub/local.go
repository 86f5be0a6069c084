package pubsub

import (
	"context"
	"log/slog"
	"sync"
)

const localBuffer = 64

// LocalProvider is an in-process Provider. Publish never blocks: a message
// for a subscriber whose buffer is full is dropped and logged.
type LocalProvider struct {
	mu   sync.Mutex
	subs map[string]map[*localSubscription]struct{}
}

// NewLocalProvider creates an empty LocalProvider.
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{subs: make(map[string]map[*localSubscription]struct{})}
}

func (p *LocalProvider) Subscribe(_ context.Context, channel string) (Subscription, error) {
	s := &localSubscription{
		provider: p,
		channel:  channel,
		messages: make(chan Message, localBuffer),
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subs[channel] == nil {
		p.subs[channel] = make(map[*localSubscription]struct{})
	}
	p.subs[channel][s] = struct{}{}
	return s, nil
}

func (p *LocalProvider) Publish(_ context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for s := range p.subs[channel] {
		copied := make([]byte, len(payload))
		copy(copied, payload)
		select {
		case s.messages <- Message{Payload: copied}:
		default:
			slog.Warn("dropping pubsub message for slow subscriber", "channel", channel)
		}
	}
	return nil
}

func (p *LocalProvider) remove(s *localSubscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if set, ok := p.subs[s.channel]; ok {
		if _, ok := set[s]; ok {
			delete(set, s)
			close(s.messages)
		}
		if len(set) == 0 {
			delete(p.subs, s.channel)
		}
	}
}

type localSubscription struct {
	provider *LocalProvider
	channel  string
	messages chan Message
	once     sync.Once
}

func (s *localSubscription) Messages() <-chan Message {
	return s.messages
}

func (s *localSubscription) Close() error {
	s.once.Do(func() { s.provider.remove(s) })
	return nil
}
