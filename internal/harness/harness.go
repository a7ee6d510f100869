package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/netcore/internal/canonical"
	"github.com/roach88/netcore/internal/slots"
	"github.com/roach88/netcore/internal/store"
	"github.com/roach88/netcore/internal/testutil"
)

// cell is the allocator item scenarios run against.
type cell struct {
	slots.Slot[*cell]
}

func newCell() *cell {
	return &cell{}
}

// Option configures a harness run.
type Option func(*Harness)

// WithLogger routes allocator and harness logs to l.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// Harness executes one scenario against a fresh allocator.
type Harness struct {
	scenario *Scenario
	alloc    *slots.Allocator[*cell]
	clock    *testutil.DeterministicClock
	session  testutil.FixedSession
	store    *store.Store // opened by the first snapshot step
	logger   *slog.Logger
	result   *Result
}

// Run executes a scenario and returns the result.
//
// Every run uses a fresh allocator and, if the scenario snapshots, a fresh
// in-memory store. Trace ticks come from a deterministic clock, so the same
// scenario always yields the same trace.
//
// The returned error reports harness failures (bad allocator parameters,
// store errors). Failed expectations are recorded in the Result instead.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		scenario: scenario,
		clock:    testutil.NewDeterministicClock(),
		session:  testutil.NewFixedSession(scenario.session()),
		result:   NewResult(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	allocOpts := []slots.Option{slots.WithLogger(h.logger)}
	if scenario.MaxPages > 0 {
		allocOpts = append(allocOpts, slots.WithMaxPages(scenario.MaxPages))
	}
	alloc, err := slots.New(scenario.ItemsPerPage, newCell, allocOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create allocator: %w", err)
	}
	h.alloc = alloc
	defer h.close()

	ctx := context.Background()
	for i := range scenario.Steps {
		if err := h.executeStep(ctx, i, &scenario.Steps[i]); err != nil {
			return nil, fmt.Errorf("steps[%d] (%s): %w", i, scenario.Steps[i].Op, err)
		}
	}

	for _, assertion := range scenario.Assertions {
		if err := evaluateAssertion(alloc, assertion); err != nil {
			h.result.AddError(err.Error())
		}
	}

	h.result.Active = activeIDs(alloc)
	h.result.Pages = alloc.PageCount()
	hash, err := canonical.Hash(canonical.DomainTrace, canonicalTrace(h.result.Trace))
	if err != nil {
		return nil, fmt.Errorf("failed to hash trace: %w", err)
	}
	h.result.TraceHash = hash

	h.logger.Debug("scenario finished",
		"scenario", scenario.Name,
		"pass", h.result.Pass,
		"events", len(h.result.Trace),
		"errors", len(h.result.Errors),
	)
	return h.result, nil
}

func (h *Harness) close() {
	if h.store != nil {
		if err := h.store.Close(); err != nil {
			h.logger.Warn("failed to close harness store", "error", err)
		}
	}
}

// executeStep runs one step, appending a trace event per atomic operation.
func (h *Harness) executeStep(ctx context.Context, index int, st *Step) error {
	switch st.Op {
	case OpAllocate:
		h.allocate(index, st)
	case OpAllocateID:
		h.allocateID(index, st)
	case OpFree:
		h.free(index, st)
	case OpPurge:
		removed := h.alloc.PurgeEmptyTrailingPages()
		h.record(TraceEvent{Op: OpPurge, OK: true, Removed: ptr(removed)})
		if st.ExpectRemoved != nil && *st.ExpectRemoved != removed {
			h.failf(index, "purge removed %d pages, expected %d", removed, *st.ExpectRemoved)
		}
	case OpSnapshot:
		return h.snapshot(ctx, index, st)
	default:
		return fmt.Errorf("unknown op %q", st.Op)
	}
	return nil
}

func (h *Harness) allocate(index int, st *Step) {
	got := make([]uint32, 0, st.count())
	exhausted := false
	for range st.count() {
		item, ok := h.alloc.TryAllocate()
		if !ok {
			exhausted = true
			h.record(TraceEvent{Op: OpAllocate, OK: false})
			break
		}
		got = append(got, item.ID())
		h.record(TraceEvent{Op: OpAllocate, ID: ptr(item.ID()), OK: true})
	}

	if exhausted != st.ExpectExhausted {
		if exhausted {
			h.failf(index, "allocate exhausted after %d ids", len(got))
		} else {
			h.failf(index, "allocate expected to exhaust capacity, got %d ids", len(got))
		}
	}
	if st.ExpectIDs != nil && !slices.Equal(got, st.ExpectIDs) {
		h.failf(index, "allocate returned ids %v, expected %v", got, st.ExpectIDs)
	}
}

func (h *Harness) allocateID(index int, st *Step) {
	id := *st.ID
	_, wasFree, err := h.alloc.TryAllocateID(id)
	if err != nil {
		h.record(TraceEvent{Op: OpAllocateID, ID: ptr(id), OK: false})
		if !st.ExpectExhausted || !slots.IsCapacityError(err) {
			h.failf(index, "allocate_id %d: %v", id, err)
		}
		return
	}

	h.record(TraceEvent{Op: OpAllocateID, ID: ptr(id), OK: true, WasFree: ptr(wasFree)})
	if st.ExpectExhausted {
		h.failf(index, "allocate_id %d expected to exceed capacity", id)
	}
	if st.ExpectWasFree != nil && *st.ExpectWasFree != wasFree {
		h.failf(index, "allocate_id %d: was_free=%t, expected %t", id, wasFree, *st.ExpectWasFree)
	}
}

func (h *Harness) free(index int, st *Step) {
	for _, id := range st.IDs {
		freed := false
		if item, ok := h.alloc.Get(id); ok {
			freed = h.alloc.TryFree(item)
		}
		h.record(TraceEvent{Op: OpFree, ID: ptr(id), OK: freed})
		if st.ExpectFreed != nil && *st.ExpectFreed != freed {
			h.failf(index, "free %d returned %t, expected %t", id, freed, *st.ExpectFreed)
		}
	}
}

// snapshot persists the allocator occupancy, reads it back and restores it
// into a second allocator. The step passes when the restored allocator
// holds exactly the live ids.
func (h *Harness) snapshot(ctx context.Context, index int, st *Step) error {
	if h.store == nil {
		s, err := store.Open(":memory:", store.WithLogger(h.logger))
		if err != nil {
			return fmt.Errorf("failed to open in-memory store: %w", err)
		}
		h.store = s
	}

	label := st.Label
	if label == "" {
		label = fmt.Sprintf("step-%d", index+1)
	}
	tick := h.clock.Next()
	snap := store.NewSnapshot(h.session.Generate(), label, tick, h.alloc.Snapshot())
	id, _, err := h.store.WriteSnapshot(ctx, snap)
	if err != nil {
		return err
	}
	stored, err := h.store.ReadSnapshot(ctx, id)
	if err != nil {
		return err
	}

	restored, err := slots.New(h.alloc.ItemsPerPage(), newCell, slots.WithMaxPages(h.alloc.MaxPages()))
	if err != nil {
		return err
	}
	ok := true
	if err := restored.Restore(stored.State); err != nil {
		ok = false
		h.failf(index, "restore snapshot %s: %v", id, err)
	} else if want, got := activeIDs(h.alloc), activeIDs(restored); !slices.Equal(want, got) {
		ok = false
		h.failf(index, "restored ids %v, expected %v", got, want)
	} else if restored.PageCount() != h.alloc.PageCount() {
		ok = false
		h.failf(index, "restored %d pages, expected %d", restored.PageCount(), h.alloc.PageCount())
	}

	h.result.Trace = append(h.result.Trace, TraceEvent{
		Seq:        tick,
		Op:         OpSnapshot,
		OK:         ok,
		SnapshotID: id,
		Active:     h.alloc.ActiveCount(),
		Pages:      h.alloc.PageCount(),
	})
	return nil
}

// record stamps ev with the next tick and the current allocator size.
func (h *Harness) record(ev TraceEvent) {
	ev.Seq = h.clock.Next()
	ev.Active = h.alloc.ActiveCount()
	ev.Pages = h.alloc.PageCount()
	h.result.Trace = append(h.result.Trace, ev)
}

func (h *Harness) failf(index int, format string, args ...any) {
	h.result.AddError(fmt.Sprintf("steps[%d]: ", index) + fmt.Sprintf(format, args...))
}

func activeIDs(a *slots.Allocator[*cell]) []uint32 {
	ids := []uint32{}
	for item := range a.Active() {
		ids = append(ids, item.ID())
	}
	return ids
}
