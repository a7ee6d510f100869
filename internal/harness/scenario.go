package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario describes a sequence of allocator operations and the state the
// allocator must be in afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// ItemsPerPage is the allocator page size.
	ItemsPerPage int `yaml:"items_per_page"`

	// MaxPages caps allocator growth. Zero keeps the allocator default.
	MaxPages int `yaml:"max_pages,omitempty"`

	// Session tags snapshots written by snapshot steps.
	// Defaults to "harness-<name>".
	Session string `yaml:"session,omitempty"`

	// Steps run in order against a fresh allocator.
	Steps []Step `yaml:"steps"`

	// Assertions validate the allocator once every step has run.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one allocator operation with optional inline expectations.
type Step struct {
	// Op is one of allocate, allocate_id, free, purge, snapshot.
	Op string `yaml:"op"`

	// Count is the number of allocations for allocate. Defaults to 1.
	Count int `yaml:"count,omitempty"`

	// ID is the slot requested by allocate_id.
	ID *uint32 `yaml:"id,omitempty"`

	// IDs are the slots released by free, in order.
	IDs []uint32 `yaml:"ids,omitempty"`

	// Label tags the snapshot written by snapshot. Defaults to "step-<n>".
	Label string `yaml:"label,omitempty"`

	// ExpectIDs are the ids allocate must hand out, in order.
	ExpectIDs []uint32 `yaml:"expect_ids,omitempty"`

	// ExpectWasFree is the wasFree result expected from allocate_id.
	ExpectWasFree *bool `yaml:"expect_was_free,omitempty"`

	// ExpectFreed is the result expected from every release of a free step.
	ExpectFreed *bool `yaml:"expect_freed,omitempty"`

	// ExpectRemoved is the number of pages purge must remove.
	ExpectRemoved *int `yaml:"expect_removed,omitempty"`

	// ExpectExhausted asserts that allocate or allocate_id hits the page
	// ceiling.
	ExpectExhausted bool `yaml:"expect_exhausted,omitempty"`
}

// Step operations.
const (
	OpAllocate   = "allocate"
	OpAllocateID = "allocate_id"
	OpFree       = "free"
	OpPurge      = "purge"
	OpSnapshot   = "snapshot"
)

// Assertion validates final allocator state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "active": occupied ids equal IDs, or their number equals Count
	// - "page_count": the allocator holds Count pages
	// - "available": the cached page with availability is Page, or None
	// - "hint": page Page caches ID as its lowest free slot, or None
	// - "invariants": CheckInvariants passes
	Type string `yaml:"type"`

	IDs   []uint32 `yaml:"ids,omitempty"`
	Count *int     `yaml:"count,omitempty"`
	Page  *int     `yaml:"page,omitempty"`
	ID    *uint32  `yaml:"id,omitempty"`
	None  bool     `yaml:"none,omitempty"`
}

// Assertion type constants.
const (
	AssertActive     = "active"
	AssertPageCount  = "page_count"
	AssertAvailable  = "available"
	AssertHint       = "hint"
	AssertInvariants = "invariants"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// session returns the session snapshot steps are tagged with.
func (s *Scenario) session() string {
	if s.Session != "" {
		return s.Session
	}
	return "harness-" + s.Name
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.ItemsPerPage <= 0 {
		return fmt.Errorf("items_per_page must be positive, got %d", s.ItemsPerPage)
	}
	if s.MaxPages < 0 {
		return fmt.Errorf("max_pages must not be negative, got %d", s.MaxPages)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i]); err != nil {
			return err
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateStep checks that a step carries exactly the fields its op uses.
func validateStep(index int, st *Step) error {
	switch st.Op {
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	case OpAllocate:
		if st.Count < 0 {
			return fmt.Errorf("steps[%d]: count must not be negative", index)
		}
		if st.ExpectIDs != nil && !st.ExpectExhausted && len(st.ExpectIDs) != st.count() {
			return fmt.Errorf("steps[%d]: expect_ids has %d ids for count %d", index, len(st.ExpectIDs), st.count())
		}
	case OpAllocateID:
		if st.ID == nil {
			return fmt.Errorf("steps[%d]: id is required for allocate_id", index)
		}
	case OpFree:
		if len(st.IDs) == 0 {
			return fmt.Errorf("steps[%d]: ids list is required for free", index)
		}
	case OpPurge, OpSnapshot:
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, st.Op)
	}

	if st.ExpectWasFree != nil && st.Op != OpAllocateID {
		return fmt.Errorf("steps[%d]: expect_was_free only applies to allocate_id", index)
	}
	if st.ExpectFreed != nil && st.Op != OpFree {
		return fmt.Errorf("steps[%d]: expect_freed only applies to free", index)
	}
	if st.ExpectRemoved != nil && st.Op != OpPurge {
		return fmt.Errorf("steps[%d]: expect_removed only applies to purge", index)
	}
	if st.ExpectExhausted && st.Op != OpAllocate && st.Op != OpAllocateID {
		return fmt.Errorf("steps[%d]: expect_exhausted only applies to allocate and allocate_id", index)
	}
	return nil
}

// count returns the number of allocations an allocate step makes.
func (st *Step) count() int {
	if st.Count == 0 {
		return 1
	}
	return st.Count
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertActive:
		if a.IDs == nil && a.Count == nil {
			return fmt.Errorf("assertions[%d]: ids or count is required for active", index)
		}
	case AssertPageCount:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for page_count", index)
		}
	case AssertAvailable:
		if a.Page == nil && !a.None {
			return fmt.Errorf("assertions[%d]: page or none is required for available", index)
		}
	case AssertHint:
		if a.Page == nil {
			return fmt.Errorf("assertions[%d]: page is required for hint", index)
		}
		if a.ID == nil && !a.None {
			return fmt.Errorf("assertions[%d]: id or none is required for hint", index)
		}
	case AssertInvariants:
	default:
		return fmt.Errorf("assertions[%d]: unknown type %q", index, a.Type)
	}
	return nil
}
