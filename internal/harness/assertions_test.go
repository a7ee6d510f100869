package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/netcore/internal/slots"
)

// newAllocator returns an allocator with ids 0..5 allocated and 1, 4 freed:
// page 0 hints 1, page 1 hints 4.
func newAllocator(t *testing.T) *slots.Allocator[*cell] {
	t.Helper()
	a, err := slots.New(4, newCell)
	require.NoError(t, err)
	for range 6 {
		_, ok := a.TryAllocate()
		require.True(t, ok)
	}
	for _, id := range []uint32{1, 4} {
		item, ok := a.Get(id)
		require.True(t, ok)
		require.True(t, a.TryFree(item))
	}
	return a
}

func TestEvaluateAssertion(t *testing.T) {
	a := newAllocator(t)

	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{"active ids", Assertion{Type: AssertActive, IDs: []uint32{0, 2, 3, 5}}, ""},
		{"active ids mismatch", Assertion{Type: AssertActive, IDs: []uint32{0, 1}}, "expected ids [0 1], actual ids [0 2 3 5]"},
		{"active count", Assertion{Type: AssertActive, Count: ptr(4)}, ""},
		{"active count mismatch", Assertion{Type: AssertActive, Count: ptr(6)}, "expected 6 active, actual 4 active"},
		{"page count", Assertion{Type: AssertPageCount, Count: ptr(2)}, ""},
		{"page count mismatch", Assertion{Type: AssertPageCount, Count: ptr(3)}, "expected 3 pages, actual 2 pages"},
		{"available", Assertion{Type: AssertAvailable, Page: ptr(0)}, ""},
		{"available mismatch", Assertion{Type: AssertAvailable, Page: ptr(1)}, "expected page 1, actual page 0"},
		{"available none mismatch", Assertion{Type: AssertAvailable, None: true}, "expected no page with availability, actual page 0"},
		{"hint", Assertion{Type: AssertHint, Page: ptr(1), ID: uptr(4)}, ""},
		{"hint mismatch", Assertion{Type: AssertHint, Page: ptr(0), ID: uptr(2)}, "expected hint 2, actual hint 1"},
		{"hint none mismatch", Assertion{Type: AssertHint, Page: ptr(0), None: true}, "expected page 0 full, actual hint 1"},
		{"hint missing page", Assertion{Type: AssertHint, Page: ptr(5), ID: uptr(20)}, "expected page 5 to exist, actual 2 pages"},
		{"invariants", Assertion{Type: AssertInvariants}, ""},
		{"unknown", Assertion{Type: "trace_order"}, `unknown assertion type "trace_order"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := evaluateAssertion(a, tt.assertion)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEvaluateAssertion_FullAllocator(t *testing.T) {
	a, err := slots.New(2, newCell)
	require.NoError(t, err)
	for range 2 {
		_, ok := a.TryAllocate()
		require.True(t, ok)
	}

	assert.NoError(t, evaluateAssertion(a, Assertion{Type: AssertAvailable, None: true}))
	assert.NoError(t, evaluateAssertion(a, Assertion{Type: AssertHint, Page: ptr(0), None: true}))

	err = evaluateAssertion(a, Assertion{Type: AssertAvailable, Page: ptr(0)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "actual no page with availability")

	err = evaluateAssertion(a, Assertion{Type: AssertHint, Page: ptr(0), ID: uptr(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "actual page 0 full")
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{Type: AssertPageCount, Expected: "3 pages", Actual: "2 pages"}
	assert.Equal(t, "assertion failed: page_count: expected 3 pages, actual 2 pages", err.Error())
}

func TestRun_FailedAssertionsAreRecorded(t *testing.T) {
	scenario := &Scenario{
		Name:         "failing_assertions",
		Description:  "final state differs",
		ItemsPerPage: 4,
		Steps:        []Step{{Op: OpAllocate, Count: 3}},
		Assertions: []Assertion{
			{Type: AssertActive, IDs: []uint32{0, 1}},
			{Type: AssertPageCount, Count: ptr(1)},
			{Type: AssertHint, Page: ptr(0), ID: uptr(0)},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "assertion failed: active")
	assert.Contains(t, result.Errors[1], "assertion failed: hint")
}
