package slots

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPageSize is returned by New when itemsPerPage is not positive.
	ErrInvalidPageSize = errors.New("slots: items per page must be positive")

	// ErrCapacityExceeded is the sentinel wrapped by CapacityError.
	ErrCapacityExceeded = errors.New("slots: capacity exceeded")

	// ErrSnapshotMismatch is returned by Restore when the snapshot was taken
	// from an allocator with a different page size, or carries stray bits.
	ErrSnapshotMismatch = errors.New("slots: snapshot does not match allocator")

	// ErrRestoreNotEmpty is returned by Restore when the allocator already
	// has occupied slots.
	ErrRestoreNotEmpty = errors.New("slots: restore requires an empty allocator")
)

// CapacityError reports that satisfying a request would grow the allocator
// past its page ceiling.
type CapacityError struct {
	ID           uint32 // Requested id, or the first id past the ceiling for TryAllocate and Restore
	MaxPages     int
	ItemsPerPage int
}

// Error implements the error interface.
func (e *CapacityError) Error() string {
	return fmt.Sprintf("slots: id %d exceeds capacity (%d pages of %d items)",
		e.ID, e.MaxPages, e.ItemsPerPage)
}

// Unwrap returns ErrCapacityExceeded.
func (e *CapacityError) Unwrap() error {
	return ErrCapacityExceeded
}

// IsCapacityError returns true if err is (or wraps) a CapacityError.
func IsCapacityError(err error) bool {
	var ce *CapacityError
	return errors.As(err, &ce)
}
