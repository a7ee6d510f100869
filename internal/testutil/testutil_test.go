package testutil

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedSession(t *testing.T) {
	assert.Equal(t, "match-7", NewFixedSession("match-7").Generate())
	assert.Equal(t, "match-7", NewFixedSession("match-7").Generate())
	assert.Equal(t, DefaultSession, NewFixedSession("").Generate())
}

func TestRecorder(t *testing.T) {
	var rec Recorder[string]
	rec.Record("a")
	rec.Record("b")

	values := rec.Values()
	assert.Equal(t, []string{"a", "b"}, values)

	values[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, rec.Values(), "Values must return a copy")

	rec.Reset()
	assert.Zero(t, rec.Len())
	assert.Empty(t, rec.Values())
}

func TestRecorder_Concurrent(t *testing.T) {
	var rec Recorder[int]
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Record(i)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, rec.Len())
	assert.ElementsMatch(t, func() []int {
		out := make([]int, 50)
		for i := range out {
			out[i] = i
		}
		return out
	}(), rec.Values())
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger(t)
	logger.Debug("visible with -v", "key", "value")
	assert.True(t, logger.Enabled(t.Context(), slog.LevelDebug))
}
