// Package events provides a minimal named-event publisher.
package events

import "sync"

// Handler receives the payload of an emitted event. Payload may be nil.
type Handler func(data any)

// Emitter holds at most one handler per event name. Registering a second
// handler for the same name replaces the first.
type Emitter[E ~string] struct {
	mu       sync.RWMutex
	handlers map[E]Handler
}

// On registers handler for name. A nil handler removes the registration.
func (e *Emitter[E]) On(name E, handler Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if handler == nil {
		delete(e.handlers, name)
		return
	}
	if e.handlers == nil {
		e.handlers = make(map[E]Handler)
	}
	e.handlers[name] = handler
}

// Emit invokes the handler registered for name, if any, on the calling goroutine.
func (e *Emitter[E]) Emit(name E, data any) {
	e.mu.RLock()
	handler := e.handlers[name]
	e.mu.RUnlock()
	if handler == nil {
		return
	}
	handler(data)
}
