// Package membus is an in-process Bus implementation for tests and
// single-node development. No persistence, no redelivery: a message published
// with no subscribers is dropped, matching the fire-and-forget semantics of
// Redis pub/sub.
package membus

import (
	"context"
	"sync"

	"github.com/dropDatabas3/fleetsign/internal/bus"
)

const subBuffer = 64

type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]*subscription
	closed bool
}

type subscription struct {
	bus     *Bus
	subject string
	ch      chan bus.Message
	once    sync.Once
}

func New() *Bus {
	return &Bus{subs: make(map[string][]*subscription)}
}

func (b *Bus) Publish(_ context.Context, subject string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return bus.ErrClosed
	}
	msg := bus.Message{Subject: subject, Payload: append([]byte(nil), payload...)}
	for _, s := range b.subs[subject] {
		select {
		case s.ch <- msg:
		default:
			// subscriber stalled; drop rather than block the publisher
		}
	}
	return nil
}

func (b *Bus) Subscribe(_ context.Context, subject string) (bus.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, bus.ErrClosed
	}
	s := &subscription{bus: b, subject: subject, ch: make(chan bus.Message, subBuffer)}
	b.subs[subject] = append(b.subs[subject], s)
	return s, nil
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, list := range b.subs {
		for _, s := range list {
			s.once.Do(func() { close(s.ch) })
		}
	}
	b.subs = make(map[string][]*subscription)
	return nil
}

func (s *subscription) C() <-chan bus.Message { return s.ch }

func (s *subscription) Unsubscribe() error {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[s.subject]
	for i, other := range list {
		if other == s {
			b.subs[s.subject] = append(list[:i], list[i+1:]...)
			break
		}
	}
	s.once.Do(func() { close(s.ch) })
	return nil
}
