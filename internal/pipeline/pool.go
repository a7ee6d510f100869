package pipeline

import (
	"fmt"
	"sync/atomic"
)

// Pool is a bounded cache of reusable objects.
//
// The free list is a buffered channel prefilled with size objects, so
// checkout and return are safe from any goroutine and an object handed out
// by Get is owned exclusively by its caller until Put. Get falls back to the
// factory when the pool is empty; Put drops the object when the pool is
// full.
type Pool[T any] struct {
	items  chan T
	newFn  func() T
	misses atomic.Int64
	drops  atomic.Int64
}

// NewPool creates a pool of size objects built by newFn.
func NewPool[T any](size int, newFn func() T) (*Pool[T], error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPoolSize, size)
	}
	if newFn == nil {
		return nil, fmt.Errorf("pipeline: nil pool factory")
	}
	p := &Pool[T]{
		items: make(chan T, size),
		newFn: newFn,
	}
	for i := 0; i < size; i++ {
		p.items <- newFn()
	}
	return p, nil
}

// Get checks out an object, creating one if the pool is empty.
func (p *Pool[T]) Get() T {
	select {
	case v := <-p.items:
		return v
	default:
		p.misses.Add(1)
		return p.newFn()
	}
}

// Put returns an object. Returns false if the pool was full and the object
// was dropped.
func (p *Pool[T]) Put(v T) bool {
	select {
	case p.items <- v:
		return true
	default:
		p.drops.Add(1)
		return false
	}
}

// Available returns the number of objects ready for checkout.
func (p *Pool[T]) Available() int {
	return len(p.items)
}

// Size returns the pool capacity.
func (p *Pool[T]) Size() int {
	return cap(p.items)
}

// Misses returns how many Get calls found the pool empty.
func (p *Pool[T]) Misses() int64 {
	return p.misses.Load()
}

// Drops returns how many Put calls found the pool full.
func (p *Pool[T]) Drops() int64 {
	return p.drops.Load()
}
