package testutil

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
)

// NewLogger returns a debug-level text logger that writes each record
// through tb.Log, so pipeline and allocator logs show up only for failing
// or verbose tests.
func NewLogger(tb testing.TB) *slog.Logger {
	return slog.New(slog.NewTextHandler(&tbWriter{tb: tb}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type tbWriter struct {
	mu sync.Mutex
	tb testing.TB
}

func (w *tbWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tb.Helper()
	w.tb.Log(string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}
