// Package testutil holds helpers shared by tests and the scenario harness:
// a resettable logical clock, fixed session ids, a concurrent call recorder
// and a slog logger that writes through testing.TB.
package testutil

import "sync"

// DeterministicClock is a resettable monotonic tick source.
//
// The harness stamps every trace event with a tick from it so the same
// scenario always produces the same trace. Safe for concurrent use.
type DeterministicClock struct {
	mu   sync.Mutex
	tick int64
}

// NewDeterministicClock returns a clock whose first Next is 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next advances the clock by one tick and returns the new tick.
func (c *DeterministicClock) Next() int64 {
	return c.Advance(1)
}

// Advance moves the clock forward by n ticks and returns the new tick.
// Negative n is treated as zero.
func (c *DeterministicClock) Advance(n int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > 0 {
		c.tick += n
	}
	return c.tick
}

// Current returns the last issued tick without advancing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tick
}

// Reset rewinds the clock so the next Next returns 1 again.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tick = 0
}
