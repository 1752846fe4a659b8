package messages

import (
	"context"
	"errors"
	"fmt"

	"github.com/vthunder/diner/internal/types"
)

var ErrNoHandler = errors.New("no handler for message kind")

// Handler processes one inbound message; a non-nil reply is sent back to the sender
type Handler func(ctx context.Context, from types.ContextID, msg Message) (Message, error)

// Router is the explicit dispatch table
type Router struct {
	handlers map[Kind]Handler
}

// NewRouter creates an empty dispatch table
func NewRouter() *Router {
	return &Router{handlers: make(map[Kind]Handler)}
}

// On registers a typed handler for the kind of T
func On[T Message](r *Router, h func(ctx context.Context, from types.ContextID, msg T) (Message, error)) {
	var zero T
	r.handlers[zero.Kind()] = func(ctx context.Context, from types.ContextID, msg Message) (Message, error) {
		typed, ok := msg.(T)
		if !ok {
			return nil, fmt.Errorf("handler for %s got %T", zero.Kind(), msg)
		}
		return h(ctx, from, typed)
	}
}

// Dispatch routes msg to its handler
func (r *Router) Dispatch(ctx context.Context, from types.ContextID, msg Message) (Message, error) {
	h, ok := r.handlers[msg.Kind()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, msg.Kind())
	}
	return h(ctx, from, msg)
}

// Validate checks that every inbound kind has a handler
func (r *Router) Validate() error {
	var missing []Kind
	for _, k := range Inbound {
		if _, ok := r.handlers[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrNoHandler, missing)
	}
	return nil
}
