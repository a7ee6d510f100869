package slots

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testItem struct {
	Slot[*testItem]
	label string
}

func newTestItem() *testItem {
	return &testItem{}
}

func newTestAllocator(t *testing.T, itemsPerPage int, opts ...Option) *Allocator[*testItem] {
	t.Helper()
	a, err := New(itemsPerPage, newTestItem, opts...)
	require.NoError(t, err)
	return a
}

func activeIDs(a *Allocator[*testItem]) []uint32 {
	ids := []uint32{}
	for item := range a.Active() {
		ids = append(ids, item.ID())
	}
	return ids
}

func TestNew_InvalidPageSize(t *testing.T) {
	_, err := New(0, newTestItem)
	assert.ErrorIs(t, err, ErrInvalidPageSize)

	_, err = New(-3, newTestItem)
	assert.ErrorIs(t, err, ErrInvalidPageSize)
}

func TestNew_RejectsOverflowingCapacity(t *testing.T) {
	_, err := New(1<<16, newTestItem, WithMaxPages(1<<17))
	assert.Error(t, err)

	_, err = New(8, newTestItem, WithMaxPages(0))
	assert.Error(t, err)
}

func TestAllocator_RoundTripSpecificID(t *testing.T) {
	a := newTestAllocator(t, 128)

	item, wasFree, err := a.TryAllocateID(125)
	require.NoError(t, err)
	assert.True(t, wasFree)
	assert.Equal(t, uint32(125), item.ID())
	assert.False(t, item.IsFree())

	require.Equal(t, 1, a.PageCount())
	avail, ok := a.Page(0).Available()
	require.True(t, ok)
	assert.Equal(t, uint32(0), avail)

	require.True(t, a.TryFree(item))
	assert.True(t, item.IsFree())

	again, wasFree, err := a.TryAllocateID(125)
	require.NoError(t, err)
	assert.True(t, wasFree)
	assert.Same(t, item, again, "recycled slot must be the same object")
	require.NoError(t, a.CheckInvariants())
}

func TestTryAllocate_Sequential(t *testing.T) {
	a := newTestAllocator(t, 4)

	for want := uint32(0); want < 10; want++ {
		item, ok := a.TryAllocate()
		require.True(t, ok)
		assert.Equal(t, want, item.ID())
		require.NoError(t, a.CheckInvariants())
	}
	assert.Equal(t, 3, a.PageCount())
	assert.Equal(t, 10, a.ActiveCount())

	page, ok := a.PageWithAvailability()
	require.True(t, ok)
	assert.Equal(t, 2, page)
}

func TestTryAllocate_ReusesLowestFreed(t *testing.T) {
	a := newTestAllocator(t, 4)
	items := make([]*testItem, 8)
	for i := range items {
		item, ok := a.TryAllocate()
		require.True(t, ok)
		items[i] = item
	}
	page, ok := a.PageWithAvailability()
	assert.False(t, ok, "both pages are full")
	assert.Equal(t, -1, page)

	require.True(t, a.TryFree(items[5]))
	require.True(t, a.TryFree(items[2]))
	require.NoError(t, a.CheckInvariants())

	next, ok := a.TryAllocate()
	require.True(t, ok)
	assert.Equal(t, uint32(2), next.ID())

	next, ok = a.TryAllocate()
	require.True(t, ok)
	assert.Equal(t, uint32(5), next.ID())

	next, ok = a.TryAllocate()
	require.True(t, ok)
	assert.Equal(t, uint32(8), next.ID())
	assert.Equal(t, 3, a.PageCount())
	require.NoError(t, a.CheckInvariants())
}

func TestTryAllocateID_GrowsContiguously(t *testing.T) {
	a := newTestAllocator(t, 8)

	item, wasFree, err := a.TryAllocateID(30)
	require.NoError(t, err)
	assert.True(t, wasFree)
	assert.Equal(t, uint32(30), item.ID())
	require.Equal(t, 4, a.PageCount())

	for k := 0; k < a.PageCount(); k++ {
		assert.Equal(t, uint32(k*8), a.Page(k).Start())
	}

	assert.True(t, a.IsAvailable(29))
	assert.False(t, a.IsAvailable(30))
	assert.True(t, a.IsAvailable(1000), "ids beyond the last page are available")

	got, ok := a.Get(29)
	require.True(t, ok)
	assert.Equal(t, uint32(29), got.ID())

	_, ok = a.Get(32)
	assert.False(t, ok)

	// Pages created on the way are empty and the lowest one is cached.
	page, ok := a.PageWithAvailability()
	require.True(t, ok)
	assert.Equal(t, 0, page)
	require.NoError(t, a.CheckInvariants())
}

func TestTryAllocateID_AlreadyOccupied(t *testing.T) {
	a := newTestAllocator(t, 8)

	first, wasFree, err := a.TryAllocateID(3)
	require.NoError(t, err)
	require.True(t, wasFree)
	first.label = "first"

	second, wasFree, err := a.TryAllocateID(3)
	require.NoError(t, err)
	assert.False(t, wasFree)
	assert.Same(t, first, second)
	assert.Equal(t, 1, a.ActiveCount())
}

func TestTryAllocateID_FillsCachedPage(t *testing.T) {
	a := newTestAllocator(t, 2)

	_, _, err := a.TryAllocateID(0)
	require.NoError(t, err)
	_, _, err = a.TryAllocateID(1)
	require.NoError(t, err)

	_, ok := a.PageWithAvailability()
	assert.False(t, ok)
	require.NoError(t, a.CheckInvariants())

	item, ok := a.TryAllocate()
	require.True(t, ok)
	assert.Equal(t, uint32(2), item.ID())
}

func TestTryFree(t *testing.T) {
	a := newTestAllocator(t, 16)

	var freed []uint32
	a.OnFree(func(item *testItem) {
		freed = append(freed, item.ID())
	})

	item, ok := a.TryAllocate()
	require.True(t, ok)

	assert.True(t, a.TryFree(item))
	assert.False(t, a.TryFree(item), "double free reports false")
	assert.Equal(t, []uint32{0}, freed, "hook runs once")
	assert.True(t, a.Page(0).Empty())

	stranger := newTestItem()
	stranger.Bind(500, nil)
	assert.False(t, a.TryFree(stranger), "ids without a page cannot be freed")
}

func TestPage_HintLowersOnlyOnLowerFree(t *testing.T) {
	a := newTestAllocator(t, 64)

	items := make([]*testItem, 10)
	for i := range items {
		items[i], _ = a.TryAllocate()
	}
	hint, ok := a.Page(0).Available()
	require.True(t, ok)
	assert.Equal(t, uint32(10), hint)

	high, _, err := a.TryAllocateID(40)
	require.NoError(t, err)
	require.True(t, a.TryFree(high))

	hint, _ = a.Page(0).Available()
	assert.Equal(t, uint32(10), hint, "freeing above the hint keeps it")

	require.True(t, a.TryFree(items[3]))
	hint, _ = a.Page(0).Available()
	assert.Equal(t, uint32(3), hint)
	require.NoError(t, a.CheckInvariants())
}

func TestForEachActive(t *testing.T) {
	a := newTestAllocator(t, 70)

	for _, id := range []uint32{139, 3, 64, 69, 70, 1} {
		_, _, err := a.TryAllocateID(id)
		require.NoError(t, err)
	}
	assert.Equal(t, []uint32{1, 3, 64, 69, 70, 139}, activeIDs(a))

	var visited []uint32
	a.ForEachActive(func(item *testItem) bool {
		visited = append(visited, item.ID())
		return len(visited) < 3
	})
	assert.Equal(t, []uint32{1, 3, 64}, visited, "iteration stops when fn returns false")
	require.NoError(t, a.CheckInvariants())
}

func TestForEachActive_FreeDuringIteration(t *testing.T) {
	a := newTestAllocator(t, 8)
	for i := 0; i < 12; i++ {
		_, ok := a.TryAllocate()
		require.True(t, ok)
	}

	a.ForEachActive(func(item *testItem) bool {
		if item.ID()%2 == 0 {
			a.TryFree(item)
		}
		return true
	})
	assert.Equal(t, []uint32{1, 3, 5, 7, 9, 11}, activeIDs(a))
	require.NoError(t, a.CheckInvariants())
}

func TestPurgeEmptyTrailingPages_TrailingOnly(t *testing.T) {
	a := newTestAllocator(t, 4)
	items := make([]*testItem, 12)
	for i := range items {
		items[i], _ = a.TryAllocate()
	}

	// Empty the middle page; the tail page stays occupied.
	for _, item := range items[4:8] {
		require.True(t, a.TryFree(item))
	}
	assert.Equal(t, 0, a.PurgeEmptyTrailingPages())
	require.Equal(t, 3, a.PageCount())

	got, ok := a.Get(9)
	require.True(t, ok)
	assert.Equal(t, uint32(9), got.ID(), "id to page mapping is untouched")
	assert.Same(t, items[9], got)

	for _, item := range items[8:] {
		require.True(t, a.TryFree(item))
	}
	assert.Equal(t, 2, a.PurgeEmptyTrailingPages())
	assert.Equal(t, 1, a.PageCount())
	require.NoError(t, a.CheckInvariants())

	_, ok = a.PageWithAvailability()
	assert.False(t, ok, "remaining page is full")

	next, ok := a.TryAllocate()
	require.True(t, ok)
	assert.Equal(t, uint32(4), next.ID())
	assert.Equal(t, 2, a.PageCount())
	require.NoError(t, a.CheckInvariants())
}

func TestPurgeEmptyTrailingPages_AllEmpty(t *testing.T) {
	a := newTestAllocator(t, 4)
	_, _, err := a.TryAllocateID(13)
	require.NoError(t, err)
	item, _ := a.Get(13)
	require.True(t, a.TryFree(item))

	assert.Equal(t, 4, a.PurgeEmptyTrailingPages())
	assert.Equal(t, 0, a.PageCount())
	_, ok := a.PageWithAvailability()
	assert.False(t, ok)
	require.NoError(t, a.CheckInvariants())
}

func TestCapacity(t *testing.T) {
	a := newTestAllocator(t, 4, WithMaxPages(2))

	for i := 0; i < 8; i++ {
		_, ok := a.TryAllocate()
		require.True(t, ok)
	}
	_, ok := a.TryAllocate()
	assert.False(t, ok)

	_, _, err := a.TryAllocateID(8)
	require.Error(t, err)
	assert.True(t, IsCapacityError(err))
	assert.True(t, errors.Is(err, ErrCapacityExceeded))

	var ce *CapacityError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, uint32(8), ce.ID)
	assert.Equal(t, 2, a.PageCount(), "failed request must not grow")
}

func TestSlot_Unbound(t *testing.T) {
	var s Slot[*testItem]
	assert.True(t, s.IsFree())
	assert.Nil(t, s.Page())
}

// TestAllocator_RandomOperations drives random allocate/free/purge sequences
// against a map model, checking invariants after every step.
func TestAllocator_RandomOperations(t *testing.T) {
	for _, itemsPerPage := range []int{1, 7, 64, 100} {
		a := newTestAllocator(t, itemsPerPage)
		rng := rand.New(rand.NewSource(int64(itemsPerPage)))
		live := map[uint32]*testItem{}
		seen := map[uint32]*testItem{}

		for step := 0; step < 2000; step++ {
			switch op := rng.Intn(10); {
			case op < 4:
				item, ok := a.TryAllocate()
				require.True(t, ok)
				require.NotContains(t, live, item.ID())
				live[item.ID()] = item
				if prev, ok := seen[item.ID()]; ok {
					require.Same(t, prev, item, "identity stability")
				}
				seen[item.ID()] = item

			case op < 6:
				id := uint32(rng.Intn(itemsPerPage * 6))
				item, wasFree, err := a.TryAllocateID(id)
				require.NoError(t, err)
				require.Equal(t, id, item.ID())
				_, occupied := live[id]
				require.Equal(t, !occupied, wasFree)
				live[id] = item
				if prev, ok := seen[id]; ok {
					require.Same(t, prev, item, "identity stability")
				}
				seen[id] = item

			case op < 9:
				for id, item := range live {
					require.True(t, a.TryFree(item))
					delete(live, id)
					break
				}

			default:
				// Purged pages take their items with them; a regrown page
				// binds fresh ones.
				if a.PurgeEmptyTrailingPages() > 0 {
					limit := uint32(a.PageCount() * itemsPerPage)
					for id := range seen {
						if id >= limit {
							delete(seen, id)
						}
					}
				}
			}

			require.NoError(t, a.CheckInvariants(), "step %d", step)
			require.Equal(t, len(live), a.ActiveCount())
			for id, item := range live {
				got, ok := a.Get(id)
				require.True(t, ok)
				require.Same(t, item, got)
				require.False(t, a.IsAvailable(id))
				require.Equal(t, int(id)/itemsPerPage, got.Page().Index(), "page contiguity")
			}
		}
	}
}
