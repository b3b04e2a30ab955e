package bus

import (
	"context"
	"errors"
	"sync"
)

const defaultBuffer = 64

// MemoryBus fans out within a single process. Publish never waits on a
// subscriber: one whose buffer is full is closed and dropped, and its reader
// sees the channel close and has to resubscribe.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySub]struct{}
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[*memorySub]struct{})}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, msg Message) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	targets := make([]*memorySub, 0, len(b.subs[topic]))
	for sub := range b.subs[topic] {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	msg.Topic = topic
	var errs []error
	for _, sub := range targets {
		if !accepts(sub.pred, msg) {
			continue
		}
		if !sub.deliver(msg) {
			_ = sub.Close()
			errs = append(errs, ErrSlowSubscriber)
		}
	}
	return errors.Join(errs...)
}

func (b *MemoryBus) Subscribe(ctx context.Context, topic string, pred Predicate) (Subscription, error) {
	sub := &memorySub{
		bus:   b,
		topic: topic,
		pred:  pred,
		ch:    make(chan Message, defaultBuffer),
		done:  make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*memorySub]struct{})
	}
	b.subs[topic][sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.closed = true
	var all []*memorySub
	for _, subs := range b.subs {
		for sub := range subs {
			all = append(all, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range all {
		_ = sub.Close()
	}
	return nil
}

func (b *MemoryBus) remove(sub *memorySub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[sub.topic], sub)
	if len(b.subs[sub.topic]) == 0 {
		delete(b.subs, sub.topic)
	}
}

type memorySub struct {
	bus   *MemoryBus
	topic string
	pred  Predicate

	// mu guards ch against being closed while a publisher is sending.
	mu     sync.RWMutex
	ch     chan Message
	done   chan struct{}
	once   sync.Once
	closed bool
}

func (s *memorySub) C() <-chan Message { return s.ch }

// deliver reports false when the buffer is full.
func (s *memorySub) deliver(msg Message) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}

func (s *memorySub) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.bus.remove(s)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
	return nil
}
