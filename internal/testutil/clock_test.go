package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicClock_StartsAtZero(t *testing.T) {
	clock := NewDeterministicClock()
	assert.Equal(t, int64(0), clock.Current())
}

func TestDeterministicClock_NextIncrementsMonotonically(t *testing.T) {
	clock := NewDeterministicClock()

	assert.Equal(t, int64(1), clock.Next())
	assert.Equal(t, int64(1), clock.Current())
	assert.Equal(t, int64(2), clock.Next())
	assert.Equal(t, int64(3), clock.Next())
	assert.Equal(t, int64(3), clock.Current())
}

func TestDeterministicClock_Advance(t *testing.T) {
	clock := NewDeterministicClock()

	assert.Equal(t, int64(5), clock.Advance(5))
	assert.Equal(t, int64(5), clock.Advance(0))
	assert.Equal(t, int64(5), clock.Advance(-3))
	assert.Equal(t, int64(6), clock.Next())
}

func TestDeterministicClock_Reset(t *testing.T) {
	clock := NewDeterministicClock()
	clock.Next()
	clock.Next()
	require.Equal(t, int64(2), clock.Current())

	clock.Reset()
	assert.Equal(t, int64(0), clock.Current())
	assert.Equal(t, int64(1), clock.Next())
}

func TestDeterministicClock_Concurrent(t *testing.T) {
	clock := NewDeterministicClock()

	const goroutines = 16
	const perGoroutine = 100

	seen := make(chan int64, goroutines*perGoroutine)
	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perGoroutine {
				seen <- clock.Next()
			}
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[int64]bool)
	for tick := range seen {
		require.False(t, unique[tick], "tick %d issued twice", tick)
		unique[tick] = true
	}
	assert.Len(t, unique, goroutines*perGoroutine)
	assert.Equal(t, int64(goroutines*perGoroutine), clock.Current())
}
