package relay

import (
	"context"
	"sync"
)

// Broker fans frames out to every member of a room, possibly across
// relay instances.
type Broker interface {
	Publish(ctx context.Context, channel string, data []byte) error
	// Subscribe returns once the subscription is active, so frames
	// published afterwards are delivered.
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Close() error
}

// Subscription delivers frames published to one channel. Messages is
// closed when the subscription ends, either through Close or because
// the broker dropped a subscriber that fell behind.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

func channelName(roomID string) string { return "room:" + roomID }

const subscriberBuffer = 256

// MemoryBroker fans out within a single process.
type MemoryBroker struct {
	mu   sync.Mutex
	subs map[string]map[*memorySub]struct{}
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[*memorySub]struct{})}
}

// Publish never blocks. A subscriber whose buffer is full is dropped
// and its Messages channel closed.
func (b *MemoryBroker) Publish(_ context.Context, channel string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[channel] {
		select {
		case sub.ch <- data:
		default:
			b.removeLocked(sub)
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(_ context.Context, channel string) (Subscription, error) {
	sub := &memorySub{
		broker:  b,
		channel: channel,
		ch:      make(chan []byte, subscriberBuffer),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*memorySub]struct{})
	}
	b.subs[channel][sub] = struct{}{}
	return sub, nil
}

// Close ends every subscription.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, set := range b.subs {
		for sub := range set {
			b.removeLocked(sub)
		}
	}
	return nil
}

func (b *MemoryBroker) subscribers(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[channel])
}

func (b *MemoryBroker) removeLocked(sub *memorySub) {
	set, ok := b.subs[sub.channel]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(b.subs, sub.channel)
	}
	close(sub.ch)
}

type memorySub struct {
	broker  *MemoryBroker
	channel string
	ch      chan []byte
}

func (s *memorySub) Messages() <-chan []byte { return s.ch }

func (s *memorySub) Close() error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	s.broker.removeLocked(s)
	return nil
}
