package pipeline

import (
	"context"
	"sync/atomic"
)

// processingContext ties one event to its derived cancellation scope for
// the duration of its traversal through the stages. Pooled.
type processingContext[T any] struct {
	event   T
	seq     int64
	ctx     context.Context
	cancel  context.CancelFunc
	aborted atomic.Bool
}

// bind attaches ev and derives the event's scope from parent, so cancelling
// parent cancels this event too.
func (c *processingContext[T]) bind(parent context.Context, ev T, seq int64) {
	c.event = ev
	c.seq = seq
	c.ctx, c.cancel = context.WithCancel(parent)
	c.aborted.Store(false)
}

// abort marks the event aborted and cancels its scope.
func (c *processingContext[T]) abort() {
	c.aborted.Store(true)
	c.cancel()
}

// reset releases the scope and references before returning to the pool.
func (c *processingContext[T]) reset() {
	if c.cancel != nil {
		c.cancel()
	}
	var zero T
	c.event = zero
	c.seq = 0
	c.ctx = nil
	c.cancel = nil
	c.aborted.Store(false)
}
