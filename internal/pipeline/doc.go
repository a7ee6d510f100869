// Package pipeline implements a concurrent, staged event-processing pipeline.
//
// A Pipeline runs every submitted event through an ordered list of stages.
// Each stage is a set of handlers run concurrently against the same event
// instance; the next stage starts only once every handler of the current
// stage has returned.
//
// ARCHITECTURE:
//
// Event flow:
//  1. Producers call Submit or CreateAndSubmit (pooled events)
//  2. The event is appended to an unbounded FIFO queue
//  3. A single reader goroutine dequeues events in order, stamping each with
//     a pickup sequence number
//  4. Each dequeued event is processed on its own goroutine: stages run in
//     order, handlers within a stage fan out via errgroup
//  5. The event and its processing context are returned to their pools on
//     every path, including handler panics
//
// There is no limit on the number of events in flight and no backpressure.
// Bounding concurrency is left to handlers or a wrapping layer.
//
// Cancellation:
// The pipeline owns one cancellation scope. Every in-flight event gets a
// derived context, so Stop cancels all remaining work while a handler
// returning false cancels only its own event. Cancellation is cooperative;
// handlers are expected to watch ctx.Done() and return promptly.
//
// Ordering:
// Pickup order equals enqueue order. Completion order across events is
// unspecified. Stage order within one event is strict; handler order within
// a stage is unspecified.
package pipeline
