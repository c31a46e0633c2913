package realtime

import (
	"context"
	"sync"

	"nexochat/backend/internal/config"
	"nexochat/backend/internal/models"
)

// MemoryBroker is an in-process Broker for single-node deployments and tests.
// Publish never blocks: a subscriber whose buffer is full is failed with
// ErrSlowConsumer, the same way the hub drops slow websocket clients.
type MemoryBroker struct {
	mu      sync.Mutex
	subs    map[*memorySub]struct{}
	offline bool
	closed  bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[*memorySub]struct{})}
}

type memorySub struct {
	broker *MemoryBroker
	topics map[string]struct{}
	ch     chan models.ChangeEvent
	err    error
	done   bool
}

func (b *MemoryBroker) Publish(ctx context.Context, topic string, ev models.ChangeEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBrokerClosed
	}
	if b.offline {
		return ErrDisconnected
	}

	ev.Topic = topic
	for s := range b.subs {
		if _, ok := s.topics[topic]; !ok {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			b.endLocked(s, ErrSlowConsumer)
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, topics ...string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBrokerClosed
	}
	if b.offline {
		return nil, ErrDisconnected
	}

	s := &memorySub{
		broker: b,
		topics: make(map[string]struct{}, len(topics)),
		ch:     make(chan models.ChangeEvent, config.SubscriptionBuffer),
	}
	for _, t := range topics {
		s.topics[t] = struct{}{}
	}
	b.subs[s] = struct{}{}
	return s, nil
}

// Disconnect simulates a transport outage: every open subscription fails
// and new subscriptions and publishes are refused until Reconnect.
func (b *MemoryBroker) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.offline = true
	for s := range b.subs {
		b.endLocked(s, ErrDisconnected)
	}
}

func (b *MemoryBroker) Reconnect() {
	b.mu.Lock()
	b.offline = false
	b.mu.Unlock()
}

// Subscribers reports the number of open subscriptions.
func (b *MemoryBroker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for s := range b.subs {
		b.endLocked(s, ErrBrokerClosed)
	}
	return nil
}

func (b *MemoryBroker) endLocked(s *memorySub, err error) {
	if s.done {
		return
	}
	s.done = true
	s.err = err
	delete(b.subs, s)
	close(s.ch)
}

func (s *memorySub) C() <-chan models.ChangeEvent { return s.ch }

func (s *memorySub) Err() error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	return s.err
}

func (s *memorySub) Close() error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	s.broker.endLocked(s, nil)
	return nil
}
