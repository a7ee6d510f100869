package pipeline

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_Prefilled(t *testing.T) {
	created := 0
	p, err := NewPool(4, func() *testEvent {
		created++
		return newTestEvent()
	})
	require.NoError(t, err)

	assert.Equal(t, 4, created)
	assert.Equal(t, 4, p.Available())
	assert.Equal(t, 4, p.Size())
}

func TestPool_GetPut(t *testing.T) {
	p, err := NewPool(2, newTestEvent)
	require.NoError(t, err)

	a := p.Get()
	b := p.Get()
	assert.NotSame(t, a, b)
	assert.Equal(t, 0, p.Available())

	// Empty pool falls back to the factory.
	c := p.Get()
	require.NotNil(t, c)
	assert.Equal(t, int64(1), p.Misses())

	assert.True(t, p.Put(a))
	assert.True(t, p.Put(b))
	assert.False(t, p.Put(c), "full pool drops the object")
	assert.Equal(t, int64(1), p.Drops())
	assert.Equal(t, 2, p.Available())
}

func TestPool_InvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		_, err := NewPool(size, newTestEvent)
		assert.ErrorIs(t, err, ErrInvalidPoolSize)
	}
}

func TestPool_NilFactory(t *testing.T) {
	_, err := NewPool[*testEvent](1, nil)
	assert.Error(t, err)
}

func TestPool_ExclusiveCheckout(t *testing.T) {
	const size, workers, rounds = 8, 16, 200
	p, err := NewPool(size, newTestEvent)
	require.NoError(t, err)

	var (
		mu  sync.Mutex
		out = make(map[*testEvent]bool)
		dup bool
	)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				ev := p.Get()
				mu.Lock()
				if out[ev] {
					dup = true
				}
				out[ev] = true
				mu.Unlock()

				mu.Lock()
				delete(out, ev)
				mu.Unlock()
				p.Put(ev)
			}
		}()
	}
	wg.Wait()

	assert.False(t, dup, "an object was checked out twice")
	assert.Equal(t, size, p.Available())
}

func TestClock_Monotonic(t *testing.T) {
	var c Clock
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}
