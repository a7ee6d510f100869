package pipeline

import (
	"context"
	"fmt"
)

// Event is the capability a pipeline event must provide.
//
// Initialize resets the event to a usable default state; it is called when
// the event is checked out of the pool by CreateAndSubmit. Cleanup releases
// references; it is called once processing has finished. Disposed events
// are not returned to the pool.
type Event interface {
	Initialize()
	Cleanup()
	IsDisposed() bool
}

// Poolable constrains pipeline events to comparable Event types, in
// practice pointers, so a nil event can be detected.
type Poolable interface {
	comparable
	Event
}

// Handler inspects or mutates one event and reports whether processing of
// that event should continue.
//
// Handlers in the same stage run concurrently against the same event and
// must coordinate any shared mutation themselves.
type Handler[T any] interface {
	Handle(ctx context.Context, ev T) bool
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[T any] func(ctx context.Context, ev T) bool

// Handle calls f(ctx, ev).
func (f HandlerFunc[T]) Handle(ctx context.Context, ev T) bool {
	return f(ctx, ev)
}

// Named returns a Handler that reports name in logs.
func Named[T any](name string, fn func(ctx context.Context, ev T) bool) Handler[T] {
	return namedHandler[T]{name: name, fn: fn}
}

type namedHandler[T any] struct {
	name string
	fn   func(ctx context.Context, ev T) bool
}

func (h namedHandler[T]) Handle(ctx context.Context, ev T) bool {
	return h.fn(ctx, ev)
}

func (h namedHandler[T]) Name() string {
	return h.name
}

// handlerName returns the identity used for a handler in logs.
func handlerName(h any) string {
	if n, ok := h.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", h)
}
