package pipeline

import "sync/atomic"

// Clock is a monotonic logical clock stamping events with their pickup
// sequence number.
//
// Only the reader goroutine advances it, so sequence numbers follow enqueue
// order. Current is safe to read from any goroutine.
type Clock struct {
	seq atomic.Int64
}

// Next returns the next sequence number, starting at 1.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
