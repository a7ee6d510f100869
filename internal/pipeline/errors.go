package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPoolSize is returned when a pool size is not positive.
	ErrInvalidPoolSize = errors.New("pipeline: pool size must be positive")

	// ErrNilHandler is returned by Build when a stage contains a nil handler.
	ErrNilHandler = errors.New("pipeline: nil handler")

	// ErrBuilderUsed is returned by Build when the builder already produced
	// a pipeline.
	ErrBuilderUsed = errors.New("pipeline: builder already built")

	// errAborted signals a handler returning false inside a stage fan-out.
	errAborted = errors.New("pipeline: handler aborted event")
)

// HandlerPanicError describes a panic recovered from a handler.
type HandlerPanicError struct {
	Handler string // Handler identity (Name() or dynamic type)
	Stage   int    // Zero-based stage index
	Seq     int64  // Pickup sequence number of the event
	Value   any    // Recovered value
}

// Error implements the error interface.
func (e *HandlerPanicError) Error() string {
	return fmt.Sprintf("pipeline: handler %s panicked in stage %d (seq=%d): %v",
		e.Handler, e.Stage, e.Seq, e.Value)
}

// IsHandlerPanic returns true if err is (or wraps) a HandlerPanicError.
func IsHandlerPanic(err error) bool {
	var pe *HandlerPanicError
	return errors.As(err, &pe)
}
