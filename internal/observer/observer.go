// Package observer provides typed publish/subscribe channels.
//
// Each notification point (node added, state changed, messages processed)
// is a Signal[T]. Subscribers receive a Subscription handle they own and
// release with Unsubscribe; a Bag collects the handles of one subscriber so
// they can be disposed together.
//
// Emit calls handlers synchronously on the emitting goroutine, in
// subscription order, without holding the signal's lock.
package observer

import "sync"

// Signal is a typed notification point. The zero value is ready to use.
type Signal[T any] struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscriber[T]
}

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// Subscribe registers fn and returns the handle that removes it.
func (s *Signal[T]) Subscribe(fn func(T)) *Subscription {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber[T]{id: id, fn: fn})
	s.mu.Unlock()

	return &Subscription{cancel: func() { s.remove(id) }}
}

func (s *Signal[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

// Emit delivers v to every current subscriber.
func (s *Signal[T]) Emit(v T) {
	s.mu.Lock()
	subs := make([]subscriber[T], len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(v)
	}
}

// Len returns the number of subscribers.
func (s *Signal[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe removes the handler. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Bag owns a set of subscriptions.
type Bag struct {
	mu   sync.Mutex
	subs []*Subscription
}

// Add takes ownership of subs.
func (b *Bag) Add(subs ...*Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subs...)
}

// Dispose unsubscribes everything in the bag.
func (b *Bag) Dispose() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
}
