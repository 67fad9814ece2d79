package progress

import (
	"sync"
)

// DefaultBuffer is the subscription buffer used when a caller passes zero
const DefaultBuffer = 64

// Publisher is what producers of events depend on
type Publisher interface {
	Publish(Event)
}

// Bus fans events out to subscribers. Publish blocks until every live
// subscriber has accepted the event, so no event is dropped and each
// subscriber sees a producer's events in publish order. Subscribers must keep
// draining C or Close their subscription.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

// Subscription is a live stream of events
type Subscription struct {
	C <-chan Event

	bus  *Bus
	ch   chan Event
	done chan struct{}

	stopOnce   sync.Once
	finishOnce sync.Once
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a subscriber with the given channel buffer. On a closed
// bus the returned subscription's channel is already closed.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	ch := make(chan Event, buffer)
	sub := &Subscription{C: ch, bus: b, ch: ch, done: make(chan struct{})}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.signal()
		sub.finish()
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish delivers e to every live subscriber
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for sub := range b.subs {
		select {
		case sub.ch <- e:
		case <-sub.done:
		}
	}
}

// Len returns the number of live subscribers
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscription and drops later events
func (b *Bus) Close() {
	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	// release publishers blocked on a send before taking the write lock
	for _, sub := range subs {
		sub.signal()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		sub.finish()
	}
}

// Close unsubscribes. Buffered events stay readable until C is drained.
func (s *Subscription) Close() {
	s.signal()

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if _, ok := s.bus.subs[s]; ok {
		delete(s.bus.subs, s)
		s.finish()
	}
}

func (s *Subscription) signal() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

func (s *Subscription) finish() {
	s.finishOnce.Do(func() {
		close(s.ch)
	})
}
