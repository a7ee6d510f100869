// Package harness runs YAML scenarios against the slot allocator and
// records a deterministic trace of every operation.
//
// # Scenario Format
//
//	name: reuse_lowest_freed
//	description: "Freed ids are handed out again lowest first"
//	items_per_page: 4
//	max_pages: 8          # optional
//	steps:
//	  - op: allocate
//	    count: 6
//	    expect_ids: [0, 1, 2, 3, 4, 5]
//	  - op: free
//	    ids: [1, 4]
//	    expect_freed: true
//	  - op: allocate_id
//	    id: 9
//	    expect_was_free: true
//	  - op: purge
//	    expect_removed: 0
//	  - op: snapshot
//	    label: after-growth
//	assertions:
//	  - type: active
//	    ids: [0, 2, 3, 5, 9]
//	  - type: page_count
//	    count: 3
//	  - type: available
//	    page: 0
//	  - type: hint
//	    page: 1
//	    id: 4
//	  - type: invariants
//
// # Operations
//
//   - allocate: TryAllocate, count times; stops at the page ceiling
//   - allocate_id: TryAllocateID for one id
//   - free: TryFree for each id, in order
//   - purge: PurgeEmptyTrailingPages
//   - snapshot: persist the occupancy to an in-memory store, read it back
//     and restore it into a second allocator
//
// # Assertion Types
//
//   - active: occupied ids (ascending) or their count
//   - page_count: number of pages
//   - available: the allocator's cached page with availability
//   - hint: a page's cached lowest free id
//   - invariants: Allocator.CheckInvariants
//
// # Deterministic Traces
//
// Trace ticks come from testutil.DeterministicClock and snapshot sessions
// from testutil.FixedSession, so a scenario's canonical trace is byte for
// byte stable and can be compared against a golden file.
package harness
