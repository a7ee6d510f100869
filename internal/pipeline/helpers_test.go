package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testEvent records what handlers did to it. Markers are guarded by mu
// because handlers of one stage run concurrently.
type testEvent struct {
	mu       sync.Mutex
	number   int
	text     string
	markers  []string
	ready    chan struct{}
	payload  []byte
	disposed bool

	initialized atomic.Int32
	cleaned     atomic.Int32
}

func newTestEvent() *testEvent {
	return &testEvent{ready: make(chan struct{})}
}

func (e *testEvent) Initialize() {
	e.initialized.Add(1)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.number = 0
	e.text = ""
	e.markers = nil
	e.ready = make(chan struct{})
	e.disposed = false
}

func (e *testEvent) Cleanup() {
	e.cleaned.Add(1)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.payload = nil
}

func (e *testEvent) IsDisposed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disposed
}

func (e *testEvent) mark(m string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.markers = append(e.markers, m)
}

func (e *testEvent) snapshot() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.markers))
	copy(out, e.markers)
	return out
}

func marker(m string) Handler[*testEvent] {
	return Named(m, func(_ context.Context, ev *testEvent) bool {
		ev.mark(m)
		return true
	})
}

func build(t *testing.T, b *Builder[*testEvent]) *Pipeline[*testEvent] {
	t.Helper()
	p, err := b.Build()
	require.NoError(t, err)
	return p
}

func startAndCleanup(t *testing.T, p *Pipeline[*testEvent]) {
	t.Helper()
	require.True(t, p.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
}

func waitIdle(t *testing.T, p *Pipeline[*testEvent]) {
	t.Helper()
	require.Eventually(t, p.Idle, 5*time.Second, time.Millisecond, "pipeline did not drain")
}
