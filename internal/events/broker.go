// Package events fans committed audit entries out to in-process
// subscribers.
package events

import (
	"sync"

	"github.com/gxp-audit/gxa/pkg/model"
)

// Filter selects the entries a subscription receives. Empty fields match
// everything.
type Filter struct {
	EntityType string
	EntityID   string
	Actions    []model.Action
}

func (f Filter) matches(e *model.AuditEntry) bool {
	if f.EntityType != "" && f.EntityType != e.EntityType {
		return false
	}
	if f.EntityID != "" && f.EntityID != e.EntityID {
		return false
	}
	if len(f.Actions) == 0 {
		return true
	}
	for _, a := range f.Actions {
		if a == e.Action {
			return true
		}
	}
	return false
}

// Broker delivers published entries to every matching subscription.
// Entries are delivered to each subscriber in publish order, so entries of
// one entity arrive in commit order when commits for that entity are
// serialized.
type Broker struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a new subscription. Call Unsubscribe when done.
func (b *Broker) Subscribe(filter Filter) *Subscription {
	s := &Subscription{
		broker: b,
		filter: filter,
		out:    make(chan model.AuditEntry),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.done)
		close(s.out)
		return s
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go s.pump()
	return s
}

// Publish enqueues entries for every matching subscription. It never blocks
// on a slow subscriber.
func (b *Broker) Publish(entries ...model.AuditEntry) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		for i := range entries {
			if s.filter.matches(&entries[i]) {
				s.enqueue(entries[i])
			}
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close unsubscribes everyone. Later subscriptions are closed immediately.
func (b *Broker) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[*Subscription]struct{})
	b.closed = true
	b.mu.Unlock()
	for s := range subs {
		s.stop()
	}
}

func (b *Broker) remove(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

// Subscription is one consumer's FIFO queue of entries.
type Subscription struct {
	broker *Broker
	filter Filter

	mu       sync.Mutex
	queue    []model.AuditEntry
	draining bool

	out  chan model.AuditEntry
	wake chan struct{}
	done chan struct{}
	once sync.Once
}

// C returns the delivery channel. It is closed after Unsubscribe.
func (s *Subscription) C() <-chan model.AuditEntry {
	return s.out
}

// Unsubscribe stops delivery and closes C. Queued entries are dropped.
func (s *Subscription) Unsubscribe() {
	s.broker.remove(s)
	s.stop()
}

// Drain stops new deliveries and closes C once every entry already queued
// has been received. The consumer must keep reading C until it closes.
func (s *Subscription) Drain() {
	s.broker.remove(s)
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *Subscription) enqueue(e model.AuditEntry) {
	s.mu.Lock()
	s.queue = append(s.queue, e)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			draining := s.draining
			s.mu.Unlock()
			if draining {
				return
			}
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		next := s.queue[0]
		s.queue[0] = model.AuditEntry{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- next:
		case <-s.done:
			return
		}
	}
}
