package netobject

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/netcore/internal/pipeline"
)

// DefaultMaxPayload is the largest payload accepted by default: what fits
// in one datagram on a typical path MTU.
const DefaultMaxPayload = 1200

// PacketOption configures a PacketPipeline.
type PacketOption func(*packetConfig)

type packetConfig struct {
	poolSize   int
	maxPayload int
	logger     *slog.Logger
	observer   func(Result)
	id         string
}

// WithPoolSize sets the packet pool size.
func WithPoolSize(n int) PacketOption {
	return func(c *packetConfig) { c.poolSize = n }
}

// WithMaxPayload sets the payload size limit enforced by validation.
func WithMaxPayload(n int) PacketOption {
	return func(c *packetConfig) { c.maxPayload = n }
}

// WithLogger sets the logger shared with the underlying pipeline.
func WithLogger(l *slog.Logger) PacketOption {
	return func(c *packetConfig) { c.logger = l }
}

// WithObserver registers fn to be called for every applied packet. fn runs
// concurrently with other stage handlers and must be safe for concurrent
// use.
func WithObserver(fn func(Result)) PacketOption {
	return func(c *packetConfig) { c.observer = fn }
}

// WithPipelineID sets the pipeline identifier used in logs.
func WithPipelineID(id string) PacketOption {
	return func(c *packetConfig) { c.id = id }
}

// Counts is a point-in-time copy of packet outcome counters.
type Counts struct {
	Spawned   int64
	Updated   int64
	Despawned int64
	Rejected  int64 // failed validation
	Failed    int64 // passed validation but could not be applied
}

// Applied returns the number of packets that changed the registry.
func (c Counts) Applied() int64 {
	return c.Spawned + c.Updated + c.Despawned
}

// PacketPipeline applies object packets to a Registry through a staged
// pipeline. The embedded Pipeline provides Start, Stop, Shutdown,
// CreateAndSubmit and the rest of the lifecycle.
type PacketPipeline struct {
	*pipeline.Pipeline[*Packet]

	registry   *Registry
	maxPayload int
	observer   func(Result)
	logger     *slog.Logger

	spawned   atomic.Int64
	updated   atomic.Int64
	despawned atomic.Int64
	rejected  atomic.Int64
	failed    atomic.Int64
}

// NewPacketPipeline builds the validate, apply and account stages over reg.
// The pipeline is returned stopped.
func NewPacketPipeline(reg *Registry, opts ...PacketOption) (*PacketPipeline, error) {
	if reg == nil {
		return nil, fmt.Errorf("netobject: nil registry")
	}
	cfg := packetConfig{
		poolSize:   pipeline.DefaultPoolSize,
		maxPayload: DefaultMaxPayload,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	pp := &PacketPipeline{
		registry:   reg,
		maxPayload: cfg.maxPayload,
		observer:   cfg.observer,
		logger:     cfg.logger,
	}

	popts := []pipeline.Option{
		pipeline.WithPoolSize(cfg.poolSize),
		pipeline.WithLogger(cfg.logger),
		pipeline.WithPanicHook(pp.onPanic),
	}
	if cfg.id != "" {
		popts = append(popts, pipeline.WithID(cfg.id))
	}

	p, err := pipeline.NewBuilder(NewPacket, popts...).
		AddStage(pipeline.Named("check-op", pp.checkOp), pipeline.Named("check-payload", pp.checkPayload)).
		AddStage(pipeline.Named("apply", pp.apply)).
		AddStage(pipeline.Named("count", pp.count), pipeline.Named("observe", pp.observe)).
		Build()
	if err != nil {
		return nil, fmt.Errorf("netobject: build pipeline: %w", err)
	}
	pp.Pipeline = p
	return pp, nil
}

// Registry returns the registry packets are applied to.
func (pp *PacketPipeline) Registry() *Registry {
	return pp.registry
}

// Counts returns a copy of the outcome counters.
func (pp *PacketPipeline) Counts() Counts {
	return Counts{
		Spawned:   pp.spawned.Load(),
		Updated:   pp.updated.Load(),
		Despawned: pp.despawned.Load(),
		Rejected:  pp.rejected.Load(),
		Failed:    pp.failed.Load(),
	}
}

// Send submits one packet built by setup.
func (pp *PacketPipeline) Send(setup func(p *Packet)) bool {
	return pp.CreateAndSubmit(setup)
}

func (pp *PacketPipeline) reject(p *Packet, err error) bool {
	if p.fail(fmt.Errorf("%w: %w", ErrInvalidPacket, err)) {
		pp.rejected.Add(1)
		pp.logger.Debug("packet rejected", "op", p.Op, "object_id", p.ObjectID, "error", err)
	}
	return false
}

func (pp *PacketPipeline) checkOp(_ context.Context, p *Packet) bool {
	switch p.Op {
	case OpSpawn, OpSpawnAt:
		if p.Kind == "" {
			return pp.reject(p, fmt.Errorf("%s without kind", p.Op))
		}
	case OpUpdate, OpDespawn:
	default:
		return pp.reject(p, fmt.Errorf("unknown op %d", p.Op))
	}
	return true
}

func (pp *PacketPipeline) checkPayload(_ context.Context, p *Packet) bool {
	if len(p.Payload) > pp.maxPayload {
		return pp.reject(p, fmt.Errorf("payload %d bytes exceeds %d", len(p.Payload), pp.maxPayload))
	}
	return true
}

func (pp *PacketPipeline) apply(_ context.Context, p *Packet) bool {
	var err error
	switch p.Op {
	case OpSpawn:
		var info Info
		info, err = pp.registry.Spawn(p.Kind, p.Owner)
		p.ObjectID, p.Version = info.ID, info.Version
	case OpSpawnAt:
		var info Info
		info, err = pp.registry.SpawnAt(p.ObjectID, p.Kind, p.Owner)
		p.Version = info.Version
	case OpUpdate:
		p.Version, err = pp.registry.Update(p.ObjectID, p.Payload)
	case OpDespawn:
		err = pp.registry.Despawn(p.ObjectID)
	}
	if err != nil {
		if p.fail(err) {
			pp.failed.Add(1)
		}
		pp.logger.Debug("packet not applied", "op", p.Op, "object_id", p.ObjectID, "error", err)
		return false
	}
	return true
}

func (pp *PacketPipeline) count(_ context.Context, p *Packet) bool {
	switch p.Op {
	case OpSpawn, OpSpawnAt:
		pp.spawned.Add(1)
	case OpUpdate:
		pp.updated.Add(1)
	case OpDespawn:
		pp.despawned.Add(1)
	}
	return true
}

func (pp *PacketPipeline) observe(_ context.Context, p *Packet) bool {
	if pp.observer != nil {
		pp.observer(Result{
			Op:       p.Op,
			ObjectID: p.ObjectID,
			Kind:     p.Kind,
			Version:  p.Version,
		})
	}
	return true
}

// onPanic counts a handler panic as a failed packet.
func (pp *PacketPipeline) onPanic(error) {
	pp.failed.Add(1)
}
