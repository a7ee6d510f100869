package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/netcore/internal/slots"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "assertion failed: %s: ", e.Type)
	fmt.Fprintf(&buf, "expected %s, actual %s", e.Expected, e.Actual)
	return buf.String()
}

// evaluateAssertion checks one assertion against the final allocator.
func evaluateAssertion(a *slots.Allocator[*cell], assertion Assertion) error {
	switch assertion.Type {
	case AssertActive:
		return assertActive(a, assertion)
	case AssertPageCount:
		if got := a.PageCount(); got != *assertion.Count {
			return &AssertionError{
				Type:     AssertPageCount,
				Expected: fmt.Sprintf("%d pages", *assertion.Count),
				Actual:   fmt.Sprintf("%d pages", got),
			}
		}
		return nil
	case AssertAvailable:
		return assertAvailable(a, assertion)
	case AssertHint:
		return assertHint(a, assertion)
	case AssertInvariants:
		if err := a.CheckInvariants(); err != nil {
			return &AssertionError{
				Type:     AssertInvariants,
				Expected: "consistent allocator",
				Actual:   err.Error(),
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type %q", assertion.Type)
	}
}

// assertActive compares occupied ids exactly (ascending) when IDs is given,
// and their number when Count is given.
func assertActive(a *slots.Allocator[*cell], assertion Assertion) error {
	got := activeIDs(a)
	if assertion.IDs != nil && !slices.Equal(got, assertion.IDs) {
		return &AssertionError{
			Type:     AssertActive,
			Expected: fmt.Sprintf("ids %v", assertion.IDs),
			Actual:   fmt.Sprintf("ids %v", got),
		}
	}
	if assertion.Count != nil && len(got) != *assertion.Count {
		return &AssertionError{
			Type:     AssertActive,
			Expected: fmt.Sprintf("%d active", *assertion.Count),
			Actual:   fmt.Sprintf("%d active", len(got)),
		}
	}
	return nil
}

func assertAvailable(a *slots.Allocator[*cell], assertion Assertion) error {
	page, ok := a.PageWithAvailability()
	switch {
	case assertion.None && ok:
		return &AssertionError{
			Type:     AssertAvailable,
			Expected: "no page with availability",
			Actual:   fmt.Sprintf("page %d", page),
		}
	case assertion.None:
		return nil
	case !ok:
		return &AssertionError{
			Type:     AssertAvailable,
			Expected: fmt.Sprintf("page %d", *assertion.Page),
			Actual:   "no page with availability",
		}
	case page != *assertion.Page:
		return &AssertionError{
			Type:     AssertAvailable,
			Expected: fmt.Sprintf("page %d", *assertion.Page),
			Actual:   fmt.Sprintf("page %d", page),
		}
	}
	return nil
}

func assertHint(a *slots.Allocator[*cell], assertion Assertion) error {
	p := a.Page(*assertion.Page)
	if p == nil {
		return &AssertionError{
			Type:     AssertHint,
			Expected: fmt.Sprintf("page %d to exist", *assertion.Page),
			Actual:   fmt.Sprintf("%d pages", a.PageCount()),
		}
	}

	id, ok := p.Available()
	switch {
	case assertion.None && ok:
		return &AssertionError{
			Type:     AssertHint,
			Expected: fmt.Sprintf("page %d full", *assertion.Page),
			Actual:   fmt.Sprintf("hint %d", id),
		}
	case assertion.None:
		return nil
	case !ok:
		return &AssertionError{
			Type:     AssertHint,
			Expected: fmt.Sprintf("hint %d", *assertion.ID),
			Actual:   fmt.Sprintf("page %d full", *assertion.Page),
		}
	case id != *assertion.ID:
		return &AssertionError{
			Type:     AssertHint,
			Expected: fmt.Sprintf("hint %d", *assertion.ID),
			Actual:   fmt.Sprintf("hint %d", id),
		}
	}
	return nil
}
