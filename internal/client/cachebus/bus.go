// Package cachebus tells read-side consumers that replica data may have
// changed, and decides how a consumer swaps a displayed value for a fresher
// one.
package cachebus

import "sync"

// EventKind is the closed set of bus events.
type EventKind int

const (
	KindUpdate EventKind = iota + 1
)

func (k EventKind) String() string {
	switch k {
	case KindUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// Event is one notification. Interactive marks events caused directly by a
// user action.
type Event struct {
	Kind        EventKind
	Interactive bool
}

// Update builds a KindUpdate event.
func Update(interactive bool) Event {
	return Event{Kind: KindUpdate, Interactive: interactive}
}

// Bus is a non-blocking broadcast. A subscriber whose buffer is full already
// has a pending event, so the new one is coalesced into it.
type Bus struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

func New() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a subscriber with the given channel buffer (at least 1).
// Subscribing to a closed bus returns an already closed subscription.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	s := &Subscription{bus: b, ch: make(chan Event, buffer)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		s.done = true
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Publish delivers ev to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		select {
		case s.ch <- ev:
		default:
			// pending event already queued
		}
	}
}

// Close ends every subscription. Later publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		s.done = true
		close(s.ch)
	}
	b.subs = nil
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	delete(b.subs, s)
	close(s.ch)
}

// Subscription receives bus events until closed.
type Subscription struct {
	bus *Bus
	ch  chan Event
	// done is guarded by bus.mu.
	done bool
}

// C returns the event channel. It is closed when the subscription or the
// bus is closed.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

func (s *Subscription) Close() {
	s.bus.remove(s)
}
