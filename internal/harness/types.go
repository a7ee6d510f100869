package harness

// TraceEvent records one atomic allocator operation and the allocator's
// size right after it.
type TraceEvent struct {
	Seq        int64   `json:"seq"`
	Op         string  `json:"op"`
	ID         *uint32 `json:"id,omitempty"`
	OK         bool    `json:"ok"`
	WasFree    *bool   `json:"was_free,omitempty"`
	Removed    *int    `json:"removed,omitempty"`
	SnapshotID string  `json:"snapshot_id,omitempty"`
	Active     int     `json:"active"`
	Pages      int     `json:"pages"`
}

// canonical returns the event as a canonical JSON object, omitting unset
// fields.
func (e TraceEvent) canonical() map[string]any {
	m := map[string]any{
		"seq":    e.Seq,
		"op":     e.Op,
		"ok":     e.OK,
		"active": e.Active,
		"pages":  e.Pages,
	}
	if e.ID != nil {
		m["id"] = *e.ID
	}
	if e.WasFree != nil {
		m["was_free"] = *e.WasFree
	}
	if e.Removed != nil {
		m["removed"] = *e.Removed
	}
	if e.SnapshotID != "" {
		m["snapshot_id"] = e.SnapshotID
	}
	return m
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every inline expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every allocator operation in order.
	Trace []TraceEvent `json:"trace"`

	// TraceHash is the content address of the canonical trace.
	TraceHash string `json:"trace_hash"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Active and Pages describe the final allocator state.
	Active []uint32 `json:"active"`
	Pages  int      `json:"pages"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Active: []uint32{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func ptr[T any](v T) *T {
	return &v
}
