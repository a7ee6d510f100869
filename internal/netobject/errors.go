package netobject

import (
	"errors"
	"fmt"
)

var (
	// ErrRegistryFull is returned when the allocator's page ceiling is hit.
	ErrRegistryFull = errors.New("netobject: registry full")

	// ErrUnknownObject is returned for ids with no live object.
	ErrUnknownObject = errors.New("netobject: unknown object")

	// ErrIDInUse is returned by SpawnAt when the id is already live.
	ErrIDInUse = errors.New("netobject: id already in use")

	// ErrInvalidPacket is returned when a packet fails validation.
	ErrInvalidPacket = errors.New("netobject: invalid packet")
)

// PacketError describes why a packet was not applied.
type PacketError struct {
	Op       Op
	ObjectID uint32
	Err      error
}

func (e *PacketError) Error() string {
	return fmt.Sprintf("netobject: %s object %d: %v", e.Op, e.ObjectID, e.Err)
}

func (e *PacketError) Unwrap() error {
	return e.Err
}

// IsPacketError returns true if err is (or wraps) a PacketError.
func IsPacketError(err error) bool {
	var pe *PacketError
	return errors.As(err, &pe)
}
