package store

import (
	"errors"
	"fmt"

	"github.com/roach88/netcore/internal/canonical"
	"github.com/roach88/netcore/internal/slots"
)

// ErrNotFound is returned when a snapshot does not exist.
var ErrNotFound = errors.New("store: snapshot not found")

// SnapshotInfo is the metadata of a stored snapshot.
type SnapshotInfo struct {
	ID           string `json:"id"`
	Session      string `json:"session"`
	Label        string `json:"label"`
	Tick         int64  `json:"tick"`
	ItemsPerPage int    `json:"items_per_page"`
	PageCount    int    `json:"page_count"`
	ActiveCount  int    `json:"active_count"`
}

// Snapshot is an allocator occupancy snapshot tagged with its session and
// logical tick.
type Snapshot struct {
	SnapshotInfo
	State slots.Snapshot
}

// NewSnapshot fills in the derived metadata of a snapshot of state.
func NewSnapshot(session, label string, tick int64, state slots.Snapshot) Snapshot {
	return Snapshot{
		SnapshotInfo: SnapshotInfo{
			Session:      session,
			Label:        label,
			Tick:         tick,
			ItemsPerPage: state.ItemsPerPage,
			PageCount:    len(state.Pages),
			ActiveCount:  state.ActiveCount(),
		},
		State: state,
	}
}

// SnapshotID computes the content address of s. Metadata derived from the
// state (page and active counts) is not hashed separately.
func SnapshotID(s Snapshot) (string, error) {
	pages := make([]any, len(s.State.Pages))
	for i, words := range s.State.Pages {
		pages[i] = words
	}
	id, err := canonical.Hash(canonical.DomainSnapshot, canonical.Object{
		"session":        s.Session,
		"label":          s.Label,
		"tick":           s.Tick,
		"items_per_page": s.State.ItemsPerPage,
		"pages":          pages,
	})
	if err != nil {
		return "", fmt.Errorf("SnapshotID: %w", err)
	}
	return id, nil
}
