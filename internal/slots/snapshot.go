package slots

import (
	"fmt"
	"math/bits"
)

// Snapshot is a copy of an allocator's occupancy: one bitmap per page.
type Snapshot struct {
	ItemsPerPage int
	Pages        [][]uint64
}

// ActiveCount returns the number of occupied slots recorded.
func (s Snapshot) ActiveCount() int {
	n := 0
	for _, words := range s.Pages {
		for _, w := range words {
			n += bits.OnesCount64(w)
		}
	}
	return n
}

// IDs returns the recorded occupied ids in ascending order.
func (s Snapshot) IDs() []uint32 {
	ids := make([]uint32, 0, s.ActiveCount())
	for k, words := range s.Pages {
		start := uint32(k) * uint32(s.ItemsPerPage)
		for w, word := range words {
			for word != 0 {
				tz := bits.TrailingZeros64(word)
				ids = append(ids, start+uint32(w*wordBits+tz))
				word &= word - 1
			}
		}
	}
	return ids
}

// Snapshot copies the current occupancy bitmaps.
func (a *Allocator[T]) Snapshot() Snapshot {
	s := Snapshot{
		ItemsPerPage: a.itemsPerPage,
		Pages:        make([][]uint64, len(a.pages)),
	}
	for k, p := range a.pages {
		s.Pages[k] = p.Words()
	}
	return s
}

// Restore re-occupies exactly the ids recorded in s. The allocator must have
// no occupied slots and the same page size the snapshot was taken with.
// Pages recorded in s are recreated even when empty. A snapshot with more
// pages than the ceiling is rejected before anything changes.
func (a *Allocator[T]) Restore(s Snapshot) error {
	if s.ItemsPerPage != a.itemsPerPage {
		return fmt.Errorf("%w: page size %d, allocator uses %d",
			ErrSnapshotMismatch, s.ItemsPerPage, a.itemsPerPage)
	}
	if a.ActiveCount() != 0 {
		return ErrRestoreNotEmpty
	}
	wordsPerPage := (a.itemsPerPage + wordBits - 1) / wordBits
	for k, words := range s.Pages {
		if len(words) != wordsPerPage {
			return fmt.Errorf("%w: page %d has %d words, want %d",
				ErrSnapshotMismatch, k, len(words), wordsPerPage)
		}
		if tail := a.itemsPerPage % wordBits; tail != 0 && words[len(words)-1]>>uint(tail) != 0 {
			return fmt.Errorf("%w: page %d has bits beyond page end", ErrSnapshotMismatch, k)
		}
	}

	if len(s.Pages) > a.maxPages {
		return &CapacityError{
			ID:           a.firstIDPast(a.maxPages),
			MaxPages:     a.maxPages,
			ItemsPerPage: a.itemsPerPage,
		}
	}

	for len(a.pages) < len(s.Pages) {
		if err := a.grow(); err != nil {
			return err
		}
	}
	for _, id := range s.IDs() {
		if _, _, err := a.TryAllocateID(id); err != nil {
			return err
		}
	}
	return nil
}
