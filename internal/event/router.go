package event

import (
	"errors"
	"log"
)

// HandlerFunc reacts to one decoded event.
type HandlerFunc func(Event)

// Router dispatches decoded frames by kind. Dispatch is synchronous, so
// frames handed over in receipt order are handled in receipt order.
type Router struct {
	name     string
	handlers map[Kind]HandlerFunc
}

// NewRouter creates a router; name prefixes its log lines.
func NewRouter(name string) *Router {
	return &Router{name: name, handlers: make(map[Kind]HandlerFunc)}
}

// On registers h for kind, replacing any previous handler.
func (r *Router) On(kind Kind, h HandlerFunc) *Router {
	r.handlers[kind] = h
	return r
}

// Handles reports whether a handler is registered for kind.
func (r *Router) Handles(kind Kind) bool {
	_, ok := r.handlers[kind]
	return ok
}

// Dispatch decodes one raw frame and calls its handler. Malformed frames
// are logged and dropped; unknown or unhandled kinds are ignored. It
// reports whether a handler ran.
func (r *Router) Dispatch(data []byte) bool {
	ev, err := Parse(data)
	if err != nil {
		if errors.Is(err, ErrUnknownKind) {
			return false
		}
		log.Printf("%s: dropping malformed frame: %v", r.name, err)
		return false
	}
	return r.Deliver(ev)
}

// Deliver routes an already decoded event, such as a polled state.
func (r *Router) Deliver(ev Event) bool {
	h, ok := r.handlers[ev.Kind()]
	if !ok {
		return false
	}
	h(ev)
	return true
}
