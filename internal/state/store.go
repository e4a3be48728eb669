package state

import (
	"errors"
	"io"
	"sync"
)

// Listener is called after every action with the new and previous state.
type Listener[S any] func(next, prev S)

// SetFunc applies one named action to the state.
type SetFunc[S any] func(action string, update func(S) S)

// API is the view of a store that middleware receives.
type API[S any] interface {
	// Name is the store's display label.
	Name() string
	// Get returns the current state.
	Get() S
	// Set runs an action through the full middleware chain.
	Set(action string, update func(S) S)
}

type listenerEntry[S any] struct {
	id int
	fn Listener[S]
}

// Store is a reactive container for a value of type S.
//
// Thread-safety: all methods are safe for concurrent use. Listeners run on
// the goroutine that issued the action, after the store lock is released.
type Store[S any] struct {
	name string

	mu        sync.Mutex
	state     S
	listeners []listenerEntry[S]
	nextID    int

	set         SetFunc[S]
	middlewares []Middleware[S]

	closeOnce sync.Once
	closeErr  error
}

// New creates a store without middleware.
func New[S any](name string, initial S) *Store[S] {
	return NewBuilder(name, initial).Build()
}

// Name returns the store's display label.
func (s *Store[S]) Name() string {
	return s.name
}

// Get returns the current state.
func (s *Store[S]) Get() S {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Set applies update as the named action.
func (s *Store[S]) Set(action string, update func(S) S) {
	s.set(action, update)
}

// Subscribe registers fn for every future action. The returned function
// removes it; calling it more than once is harmless.
func (s *Store[S]) Subscribe(fn Listener[S]) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, listenerEntry[S]{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Close releases middleware resources in reverse registration order.
// The in-memory state stays usable.
func (s *Store[S]) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		for i := len(s.middlewares) - 1; i >= 0; i-- {
			if c, ok := s.middlewares[i].(io.Closer); ok {
				if err := c.Close(); err != nil {
					errs = append(errs, err)
				}
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// apply is the innermost link of the chain.
func (s *Store[S]) apply(action string, update func(S) S) {
	s.mu.Lock()
	prev := s.state
	s.state = update(prev)
	next := s.state
	listeners := make([]listenerEntry[S], len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l.fn(next, prev)
	}
}
