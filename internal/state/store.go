package state

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/five82/reel/internal/logging"
)

// Listener observes a store change. prev is the state before the change.
type Listener[S any] func(next, prev S)

// Persistence mirrors a whitelisted subset of a store's state to durable
// storage. Restore seeds the initial state; Persist runs after every change.
type Persistence[S any] interface {
	Restore(state *S)
	Persist(state S)
}

type listenerEntry[S any] struct {
	id      uint64
	fn      Listener[S]
	removed atomic.Bool
}

type change[S any] struct {
	next S
	prev S
}

// Store is an observable container for one slice of client state.
//
// SetState applies a mutation and notifies listeners in call order. A
// SetState made from inside a listener is queued and delivered once the
// current notification pass finishes.
type Store[S any] struct {
	name    string
	persist Persistence[S]
	logger  *log.Logger

	mu          sync.Mutex
	state       S
	nextID      uint64
	listeners   []*listenerEntry[S]
	pending     []change[S]
	dispatching bool
}

// NewStore creates a store seeded with initial, then with whatever persist
// restores on top of it. persist may be nil.
func NewStore[S any](name string, initial S, persist Persistence[S], logger *log.Logger) *Store[S] {
	if persist != nil {
		persist.Restore(&initial)
	}
	return &Store[S]{
		name:    name,
		state:   initial,
		persist: persist,
		logger:  logging.Component(logger, "store."+name),
	}
}

// Name returns the store's name.
func (s *Store[S]) Name() string { return s.name }

// Snapshot returns a shallow copy of the current state.
func (s *Store[S]) Snapshot() S {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState applies mutate to a copy of the current state, stores the result
// and notifies every listener once. mutate must replace slices and maps it
// changes rather than editing them in place.
func (s *Store[S]) SetState(mutate func(*S)) {
	s.mu.Lock()
	prev := s.state
	next := prev
	if mutate != nil {
		mutate(&next)
	}
	s.state = next
	s.pending = append(s.pending, change[S]{next: next, prev: prev})
	if s.dispatching {
		s.mu.Unlock()
		return
	}
	s.dispatching = true
	s.mu.Unlock()

	s.drain()
}

func (s *Store[S]) drain() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.dispatching = false
			s.mu.Unlock()
			return
		}
		ch := s.pending[0]
		s.pending = s.pending[1:]
		listeners := append([]*listenerEntry[S](nil), s.listeners...)
		s.mu.Unlock()

		if s.persist != nil {
			s.safely("persist", func() { s.persist.Persist(ch.next) })
		}
		for _, l := range listeners {
			if l.removed.Load() {
				continue
			}
			s.safely("listener", func() { l.fn(ch.next, ch.prev) })
		}
	}
}

func (s *Store[S]) safely(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(what+" panicked", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

// AddListener registers fn and returns a function that unregisters it.
func (s *Store[S]) AddListener(fn Listener[S]) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	ent := &listenerEntry[S]{id: s.nextID, fn: fn}
	s.listeners = append(s.listeners, ent)
	return func() { s.removeListener(ent.id) }
}

func (s *Store[S]) removeListener(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, l := range s.listeners {
		if l.id == id {
			l.removed.Store(true)
			s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
			return
		}
	}
}

// ListenerCount reports how many listeners are registered.
func (s *Store[S]) ListenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}
