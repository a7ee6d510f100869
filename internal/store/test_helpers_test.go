package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/netcore/internal/slots"
)

// createTestStore opens a fresh database in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSnapshot builds a three-page snapshot with ids 0, 2 and 130 live
// (64 items per page). The middle page is empty.
func createTestSnapshot(session string, tick int64) Snapshot {
	state := slots.Snapshot{
		ItemsPerPage: 64,
		Pages: [][]uint64{
			{0b101},
			{0},
			{0b100},
		},
	}
	return NewSnapshot(session, "test", tick, state)
}
