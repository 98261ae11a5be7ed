// Package observable provides a value holder that pushes every change to its subscribers.
package observable

import (
	"sync"
	"sync/atomic"
)

// Subject holds the latest value of T and delivers it to subscribers.
// A new subscriber immediately receives the current value; afterwards every
// successful Update is delivered exactly once to every live subscriber, in the
// order the updates happened and in subscription order.
//
// Delivery is synchronous: Update returns after all observers ran. Observers
// may call Value but must not call Update or Subscribe on the same Subject.
type Subject[T any] struct {
	deliver sync.Mutex // serializes updates and their delivery

	mu    sync.RWMutex
	value T
	subs  []*subscription[T]
}

type subscription[T any] struct {
	fn     func(T)
	active atomic.Bool
}

// NewSubject creates a Subject seeded with initial.
func NewSubject[T any](initial T) *Subject[T] {
	return &Subject[T]{value: initial}
}

// Value returns the current value.
func (s *Subject[T]) Value() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Subscribe registers fn and calls it with the current value before returning.
// The returned cancel function is idempotent and never waits for a delivery, so it
// may be called from inside fn. After cancel returns, at most the one delivery
// already in flight may still complete; no later update reaches fn.
func (s *Subject[T]) Subscribe(fn func(T)) (cancel func()) {
	sub := &subscription[T]{fn: fn}
	sub.active.Store(true)

	s.deliver.Lock()
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	current := s.value
	s.mu.Unlock()
	fn(current)
	s.deliver.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.active.Store(false)
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, candidate := range s.subs {
				if candidate == sub {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					break
				}
			}
		})
	}
}

// Update computes the next value from the current one. When fn returns an error
// or reports no change, the value is left as is and nobody is notified.
func (s *Subject[T]) Update(fn func(current T) (next T, changed bool, err error)) error {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	next, changed, err := fn(s.Value())
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	s.mu.Lock()
	s.value = next
	subs := make([]*subscription[T], len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		if sub.active.Load() {
			sub.fn(next)
		}
	}
	return nil
}

// Len reports the number of live subscribers.
func (s *Subject[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
