package pipeline

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Stats is a point-in-time copy of the pipeline counters.
type Stats struct {
	Submitted int64 // Events accepted by Submit
	Completed int64 // Events that ran through every stage
	Aborted   int64 // Events stopped by a handler returning false or panicking
	Cancelled int64 // Events stopped by pipeline cancellation
	Panicked  int64 // Recovered handler panics
}

// Pipeline processes events through ordered stages of concurrent handlers.
// Create one with NewBuilder.
//
// Thread-safety model:
//   - Submit, CreateAndSubmit, Start, Stop, Shutdown: safe from any goroutine
//   - exactly one reader goroutine consumes the queue while running
//   - every event is processed on its own goroutine
type Pipeline[T Poolable] struct {
	id        string
	logger    *slog.Logger
	panicHook func(error)
	stages    []stage[T]
	queue     *queue[T]
	clock     Clock
	events    *Pool[T]
	contexts  *Pool[*processingContext[T]]

	state atomic.Int32

	mu     sync.Mutex // guards ctx, cancel, done
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	inflight sync.WaitGroup
	pending  atomic.Int64

	submitted atomic.Int64
	completed atomic.Int64
	aborted   atomic.Int64
	cancelled atomic.Int64
	panicked  atomic.Int64
}

func newPipeline[T Poolable](cfg config, stages []stage[T], events *Pool[T], contexts *Pool[*processingContext[T]]) *Pipeline[T] {
	p := &Pipeline[T]{
		id:        cfg.id,
		logger:    cfg.logger,
		panicHook: cfg.panicHook,
		stages:    stages,
		queue:     newQueue[T](),
		events:    events,
		contexts:  contexts,
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())

	// Not started: Done reports an exited reader.
	p.done = make(chan struct{})
	close(p.done)
	return p
}

// ID returns the pipeline identifier.
func (p *Pipeline[T]) ID() string {
	return p.id
}

// State returns the current lifecycle state.
func (p *Pipeline[T]) State() State {
	return State(p.state.Load())
}

// StageCount returns the number of stages.
func (p *Pipeline[T]) StageCount() int {
	return len(p.stages)
}

// EventPool returns the pool events are checked out from.
func (p *Pipeline[T]) EventPool() *Pool[T] {
	return p.events
}

// ContextPool returns the pool of per-event processing contexts.
func (p *Pipeline[T]) ContextPool() *Pool[*processingContext[T]] {
	return p.contexts
}

// QueueLen returns the number of events waiting for pickup.
func (p *Pipeline[T]) QueueLen() int {
	return p.queue.Len()
}

// Pending returns the number of submitted events that have not finished
// processing (queued or in flight).
func (p *Pipeline[T]) Pending() int64 {
	return p.pending.Load()
}

// Idle reports whether every submitted event has finished processing.
func (p *Pipeline[T]) Idle() bool {
	return p.pending.Load() == 0
}

// idlePoll is how often WaitIdle samples the pending counter.
const idlePoll = time.Millisecond

// WaitIdle blocks until every submitted event has finished processing or
// ctx is done. Events submitted concurrently with WaitIdle may or may not
// be waited for.
func (p *Pipeline[T]) WaitIdle(ctx context.Context) error {
	if p.Idle() {
		return nil
	}
	ticker := time.NewTicker(idlePoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if p.Idle() {
				return nil
			}
		}
	}
}

// Sequence returns the pickup sequence number of the last dequeued event.
func (p *Pipeline[T]) Sequence() int64 {
	return p.clock.Current()
}

// Stats returns a copy of the pipeline counters.
func (p *Pipeline[T]) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Aborted:   p.aborted.Load(),
		Cancelled: p.cancelled.Load(),
		Panicked:  p.panicked.Load(),
	}
}

// Start spawns the reader goroutine. Returns false if the pipeline is not
// stopped. A pipeline may be restarted after its reader has exited; a fresh
// cancellation scope replaces the spent one.
func (p *Pipeline[T]) Start() bool {
	if !p.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		p.logger.Warn("pipeline start ignored", "pipeline_id", p.id, "state", p.State())
		return false
	}

	p.mu.Lock()
	if p.ctx.Err() != nil {
		p.ctx, p.cancel = context.WithCancel(context.Background())
	}
	ctx := p.ctx
	done := make(chan struct{})
	p.done = done
	p.mu.Unlock()

	p.state.Store(int32(StateRunning))
	p.logger.Info("pipeline started", "pipeline_id", p.id, "stages", len(p.stages))

	go p.run(ctx, done)
	return true
}

// Stop cancels the pipeline scope and asks the reader to exit, without
// waiting for it. In-flight events observe cancellation at their next
// stage boundary. Returns false if the pipeline is not running.
//
// Use Done or Shutdown to wait for the reader and in-flight events.
func (p *Pipeline[T]) Stop() bool {
	if !p.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		p.logger.Debug("pipeline stop ignored", "pipeline_id", p.id, "state", p.State())
		return false
	}

	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	cancel()

	p.logger.Info("pipeline stopping", "pipeline_id", p.id, "queued", p.queue.Len())
	return true
}

// Done returns a channel closed once the reader goroutine of the most
// recent Start has exited.
func (p *Pipeline[T]) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Shutdown stops the pipeline and waits until the reader has exited and
// every in-flight event has been released, or ctx is done.
// Events still queued are left in the queue; see Discard.
func (p *Pipeline[T]) Shutdown(ctx context.Context) error {
	p.Stop()

	select {
	case <-p.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	drained := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		p.logger.Info("pipeline stopped", "pipeline_id", p.id, "queued", p.queue.Len())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Discard removes every queued event without processing it, cleaning each
// up and returning it to the pool. Returns the number discarded.
// Intended for stopped pipelines.
func (p *Pipeline[T]) Discard() int {
	evs := p.queue.drain()
	for _, ev := range evs {
		p.recycle(ev)
		p.pending.Add(-1)
	}
	return len(evs)
}

// Submit enqueues a ready-to-process event. Legal in any state, but events
// submitted after Stop may never be processed. Returns false only for a nil
// event.
func (p *Pipeline[T]) Submit(ev T) bool {
	var zero T
	if ev == zero {
		p.logger.Warn("submit of nil event rejected", "pipeline_id", p.id)
		return false
	}
	p.pending.Add(1)
	p.submitted.Add(1)
	p.queue.Enqueue(ev)
	return true
}

// CreateAndSubmit checks out a pooled event, initializes it, applies setup
// and submits it.
func (p *Pipeline[T]) CreateAndSubmit(setup func(ev T)) bool {
	ev := p.events.Get()
	ev.Initialize()
	if setup != nil {
		setup(ev)
	}
	return p.Submit(ev)
}

// run is the reader loop: the only consumer of the queue.
func (p *Pipeline[T]) run(ctx context.Context, done chan struct{}) {
	defer func() {
		p.state.Store(int32(StateStopped))
		close(done)
	}()

	for {
		if ctx.Err() != nil {
			p.logger.Debug("reader exiting: context cancelled", "pipeline_id", p.id)
			return
		}

		ev, ok := p.queue.TryDequeue()
		if ok {
			p.dispatch(ctx, ev)
			continue
		}

		select {
		case <-ctx.Done():
			p.logger.Debug("reader exiting: context cancelled", "pipeline_id", p.id)
			return
		case <-p.queue.Wait():
		}
	}
}

// dispatch stamps ev with its pickup sequence and processes it on a new
// goroutine.
func (p *Pipeline[T]) dispatch(ctx context.Context, ev T) {
	seq := p.clock.Next()
	p.inflight.Add(1)
	go p.process(ctx, ev, seq)
}

// process runs one event through every stage. The event and its context
// are released on every path.
func (p *Pipeline[T]) process(parent context.Context, ev T, seq int64) {
	pc := p.contexts.Get()
	pc.bind(parent, ev, seq)
	defer p.release(pc)

	finished := true
	for i := range p.stages {
		if pc.aborted.Load() || pc.ctx.Err() != nil {
			finished = false
			break
		}
		p.runStage(pc, i)
	}

	switch {
	case pc.aborted.Load():
		p.aborted.Add(1)
		p.logger.Debug("event aborted", "pipeline_id", p.id, "seq", seq)
	case !finished:
		p.cancelled.Add(1)
		p.logger.Debug("event cancelled", "pipeline_id", p.id, "seq", seq)
	default:
		p.completed.Add(1)
	}
}

// runStage fans the stage's handlers out and joins them. Any handler
// returning false aborts the event.
func (p *Pipeline[T]) runStage(pc *processingContext[T], idx int) {
	handlers := p.stages[idx].handlers
	switch len(handlers) {
	case 0:
		return
	case 1:
		if !p.invoke(pc.ctx, pc, idx, handlers[0]) {
			pc.abort()
		}
		return
	}

	g, gctx := errgroup.WithContext(pc.ctx)
	for _, h := range handlers {
		g.Go(func() error {
			if !p.invoke(gctx, pc, idx, h) {
				return errAborted
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		pc.abort()
	}
}

// invoke calls one handler, converting a panic into a false result.
func (p *Pipeline[T]) invoke(ctx context.Context, pc *processingContext[T], idx int, h Handler[T]) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			err := &HandlerPanicError{
				Handler: handlerName(h),
				Stage:   idx,
				Seq:     pc.seq,
				Value:   r,
			}
			p.logger.Error("handler panicked",
				"pipeline_id", p.id,
				"handler", err.Handler,
				"stage", idx,
				"seq", pc.seq,
				"error", err,
				"stack", string(debug.Stack()),
			)
			if p.panicHook != nil {
				p.panicHook(err)
			}
			ok = false
		}
	}()
	return h.Handle(ctx, pc.event)
}

// release returns the context and event to their pools.
func (p *Pipeline[T]) release(pc *processingContext[T]) {
	ev := pc.event
	pc.reset()
	p.contexts.Put(pc)
	p.recycle(ev)
	p.pending.Add(-1)
	p.inflight.Done()
}

// recycle cleans ev up and returns it to the event pool unless disposed.
func (p *Pipeline[T]) recycle(ev T) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("event cleanup panicked", "pipeline_id", p.id, "panic", r)
		}
	}()
	ev.Cleanup()
	if ev.IsDisposed() {
		return
	}
	p.events.Put(ev)
}
