// Package events provides a small named-event emitter used to fan out
// connection and job events to whoever is listening.
package events

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/five82/reel/internal/logging"
)

// Listener receives the payload of an emitted event.
type Listener[T any] func(payload T)

// ListenerID identifies a registered listener within an Emitter.
type ListenerID uint64

type entry[T any] struct {
	id      ListenerID
	fn      Listener[T]
	once    bool
	removed atomic.Bool
}

// Registration is returned by On and Once.
type Registration struct {
	ID    ListenerID
	Event string

	off func(string, ListenerID) bool
}

// Unsubscribe removes the listener. It reports whether the listener was
// still registered.
func (r Registration) Unsubscribe() bool {
	if r.off == nil {
		return false
	}
	return r.off(r.Event, r.ID)
}

// Emitter dispatches payloads of type T to listeners registered by event
// name. Dispatch is synchronous on the emitting goroutine.
type Emitter[T any] struct {
	mu        sync.Mutex
	nextID    ListenerID
	listeners map[string][]*entry[T]
	logger    *log.Logger
}

// NewEmitter creates an Emitter that reports listener panics to logger.
func NewEmitter[T any](logger *log.Logger) *Emitter[T] {
	return &Emitter[T]{
		listeners: make(map[string][]*entry[T]),
		logger:    logging.Component(logger, "events"),
	}
}

// On registers fn for event. Listeners for the same event run in
// registration order.
func (e *Emitter[T]) On(event string, fn Listener[T]) Registration {
	return e.add(event, fn, false)
}

// Once registers fn so that it runs at most once.
func (e *Emitter[T]) Once(event string, fn Listener[T]) Registration {
	return e.add(event, fn, true)
}

func (e *Emitter[T]) add(event string, fn Listener[T], once bool) Registration {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.listeners == nil {
		e.listeners = make(map[string][]*entry[T])
	}
	e.nextID++
	ent := &entry[T]{id: e.nextID, fn: fn, once: once}
	e.listeners[event] = append(e.listeners[event], ent)
	return Registration{ID: ent.id, Event: event, off: e.Off}
}

// Off removes the listener with the given id. It returns false when no such
// listener is registered for event.
func (e *Emitter[T]) Off(event string, id ListenerID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	list := e.listeners[event]
	for i, ent := range list {
		if ent.id != id {
			continue
		}
		ent.removed.Store(true)
		rest := make([]*entry[T], 0, len(list)-1)
		rest = append(rest, list[:i]...)
		rest = append(rest, list[i+1:]...)
		if len(rest) == 0 {
			delete(e.listeners, event)
		} else {
			e.listeners[event] = rest
		}
		return true
	}
	return false
}

// Emit calls every listener registered for event with payload and reports
// whether there were any. Listeners registered while Emit runs are not called
// in this pass; listeners removed while Emit runs are skipped.
func (e *Emitter[T]) Emit(event string, payload T) bool {
	e.mu.Lock()
	snapshot := append([]*entry[T](nil), e.listeners[event]...)
	e.mu.Unlock()

	if len(snapshot) == 0 {
		return false
	}
	for _, ent := range snapshot {
		if ent.removed.Load() {
			continue
		}
		if ent.once {
			if !ent.removed.CompareAndSwap(false, true) {
				continue
			}
			e.Off(event, ent.id)
		}
		e.invoke(event, ent.fn, payload)
	}
	return true
}

func (e *Emitter[T]) invoke(event string, fn Listener[T], payload T) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("listener panicked", "event", event, "panic", fmt.Sprint(r))
		}
	}()
	fn(payload)
}

// ListenerCount returns the number of listeners registered for event.
func (e *Emitter[T]) ListenerCount(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[event])
}

// Names returns the event names that currently have listeners.
func (e *Emitter[T]) Names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.listeners))
	for name := range e.listeners {
		names = append(names, name)
	}
	return names
}
