package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
)

// DefaultPoolSize is the event and context pool size used when WithPoolSize
// is not given.
const DefaultPoolSize = 64

// Option configures a Pipeline.
type Option func(*config)

type config struct {
	poolSize  int
	logger    *slog.Logger
	id        string
	panicHook func(error)
}

// WithPoolSize sets the size of the event and context pools.
func WithPoolSize(n int) Option {
	return func(c *config) {
		c.poolSize = n
	}
}

// WithLogger sets the pipeline logger. Defaults to a discarding logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithID sets the identifier reported as pipeline_id in logs.
// Defaults to a UUIDv7.
func WithID(id string) Option {
	return func(c *config) {
		c.id = id
	}
}

// WithPanicHook registers fn to receive a *HandlerPanicError for every
// recovered handler panic. fn runs on the event's goroutine.
func WithPanicHook(fn func(error)) Option {
	return func(c *config) {
		c.panicHook = fn
	}
}

type stage[T any] struct {
	handlers []Handler[T]
}

// Builder assembles the ordered stage list of a Pipeline. A builder
// produces one pipeline; the stage list is immutable afterwards.
type Builder[T Poolable] struct {
	newEvent func() T
	opts     []Option
	stages   []stage[T]
	err      error
	built    bool
}

// NewBuilder starts a pipeline whose event pool is filled by newEvent.
func NewBuilder[T Poolable](newEvent func() T, opts ...Option) *Builder[T] {
	return &Builder[T]{
		newEvent: newEvent,
		opts:     opts,
	}
}

// AddStage appends a stage. Stages run in append order; the handlers of
// one stage run concurrently. A stage with no handlers is a no-op.
func (b *Builder[T]) AddStage(handlers ...Handler[T]) *Builder[T] {
	if b.built {
		b.err = ErrBuilderUsed
		return b
	}
	for i, h := range handlers {
		if h == nil {
			b.err = fmt.Errorf("%w: stage %d handler %d", ErrNilHandler, len(b.stages), i)
			return b
		}
	}
	hs := make([]Handler[T], len(handlers))
	copy(hs, handlers)
	b.stages = append(b.stages, stage[T]{handlers: hs})
	return b
}

// AddStageFunc appends a stage of function handlers.
func (b *Builder[T]) AddStageFunc(fns ...func(ctx context.Context, ev T) bool) *Builder[T] {
	hs := make([]Handler[T], len(fns))
	for i, fn := range fns {
		if fn != nil {
			hs[i] = HandlerFunc[T](fn)
		}
	}
	return b.AddStage(hs...)
}

// Build finalizes the stage list and creates the pipeline in the Stopped
// state.
func (b *Builder[T]) Build() (*Pipeline[T], error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.built {
		return nil, ErrBuilderUsed
	}
	if b.newEvent == nil {
		return nil, fmt.Errorf("pipeline: nil event factory")
	}

	cfg := config{poolSize: DefaultPoolSize}
	for _, opt := range b.opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.id == "" {
		cfg.id = uuid.Must(uuid.NewV7()).String()
	}

	events, err := NewPool(cfg.poolSize, b.newEvent)
	if err != nil {
		return nil, err
	}
	contexts, err := NewPool(cfg.poolSize, func() *processingContext[T] {
		return &processingContext[T]{}
	})
	if err != nil {
		return nil, err
	}

	b.built = true
	return newPipeline(cfg, b.stages, events, contexts), nil
}
