// Package wsrouter dispatches typed websocket envelopes to registered
// handlers. It does not own the connection: the read loop lives with
// whoever manages the socket, the router only routes decoded frames.
package wsrouter

import (
	"context"
	"encoding/json"
)

// Envelope is one frame on the room channel.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type HandlerFunc func(ctx context.Context, payload json.RawMessage)

type Router struct {
	routes   map[string]HandlerFunc
	notFound HandlerFunc
}

func New() *Router {
	return &Router{routes: make(map[string]HandlerFunc)}
}

func (r *Router) Handle(event string, handler HandlerFunc) {
	r.routes[event] = handler
}

// HandleNotFound registers a fallback for events with no route.
func (r *Router) HandleNotFound(handler HandlerFunc) {
	r.notFound = handler
}

// Dispatch routes a single envelope. Unroutable events go to the
// not-found handler when one is set and are dropped otherwise.
func (r *Router) Dispatch(ctx context.Context, env Envelope) {
	if handler, exists := r.routes[env.Event]; exists {
		handler(withEventType(ctx, env.Event), env.Payload)
		return
	}

	if r.notFound != nil {
		r.notFound(withEventType(ctx, env.Event), env.Payload)
	}
}
