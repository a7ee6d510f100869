package netobject

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/netcore/internal/config"
	"github.com/roach88/netcore/internal/pipeline"
	"github.com/roach88/netcore/internal/slots"
)

// SimConfig describes a synthetic packet workload.
type SimConfig struct {
	Session        string // defaults to a UUIDv7
	Packets        int
	Seed           int64
	Producers      int
	UpdatePercent  int
	DespawnPercent int
	Kinds          []string
	ItemsPerPage   int
	MaxPages       int
	PoolSize       int
	Logger         *slog.Logger
	Observer       func(Result)
}

// SimConfigFrom maps a loaded configuration onto a SimConfig.
func SimConfigFrom(cfg config.Config) SimConfig {
	return SimConfig{
		Packets:        cfg.Simulate.Packets,
		Seed:           cfg.Simulate.Seed,
		Producers:      cfg.Simulate.Producers,
		UpdatePercent:  cfg.Simulate.UpdatePercent,
		DespawnPercent: cfg.Simulate.DespawnPercent,
		Kinds:          cfg.Simulate.Kinds,
		ItemsPerPage:   cfg.Slots.ItemsPerPage,
		MaxPages:       cfg.Slots.MaxPages,
		PoolSize:       cfg.Pipeline.PoolSize,
	}
}

// SimReport summarizes a simulation run.
type SimReport struct {
	Session      string
	Packets      int
	SpawnsSent   int64
	UpdatesSent  int64
	DespawnsSent int64
	Counts       Counts
	Pipeline     pipeline.Stats
	Live         int
	Pages        int
	PagesPurged  int
	Sequence     int64
	PoolMisses   int64
	Elapsed      time.Duration
	Snapshot     slots.Snapshot
}

// Simulate drives cfg.Packets synthetic packets from cfg.Producers
// concurrent producers through a fresh registry and packet pipeline.
//
// Each producer draws its operations from its own generator seeded with
// (Seed, producer index), so the packets sent are reproducible. Outcomes
// depend on scheduling: an update may reach an id whose spawn has not been
// applied yet and fail.
func Simulate(ctx context.Context, cfg SimConfig) (SimReport, error) {
	if cfg.Producers <= 0 {
		cfg.Producers = 1
	}
	if len(cfg.Kinds) == 0 {
		cfg.Kinds = []string{"object"}
	}
	if cfg.Session == "" {
		cfg.Session = uuid.Must(uuid.NewV7()).String()
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = pipeline.DefaultPoolSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("session", cfg.Session)

	reg, err := NewRegistry(RegistryConfig{
		ItemsPerPage: cfg.ItemsPerPage,
		MaxPages:     cfg.MaxPages,
		Logger:       logger,
	})
	if err != nil {
		return SimReport{}, err
	}
	pp, err := NewPacketPipeline(reg,
		WithPoolSize(cfg.PoolSize),
		WithLogger(logger),
		WithObserver(cfg.Observer),
		WithPipelineID(cfg.Session),
	)
	if err != nil {
		return SimReport{}, err
	}

	started := time.Now()
	pp.Start()

	var spawns, updates, despawns atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Producers; i++ {
		quota := cfg.Packets / cfg.Producers
		if i < cfg.Packets%cfg.Producers {
			quota++
		}
		g.Go(func() error {
			owner := fmt.Sprintf("producer-%d", i)
			for _, op := range planProducer(cfg, i, quota) {
				if err := gctx.Err(); err != nil {
					return err
				}
				switch op.Op {
				case OpSpawn:
					spawns.Add(1)
				case OpUpdate:
					updates.Add(1)
				case OpDespawn:
					despawns.Add(1)
				}
				pp.Send(func(p *Packet) {
					p.Op = op.Op
					p.ObjectID = op.Target
					p.Kind = op.Kind
					p.Owner = owner
					if op.Op == OpUpdate {
						p.Payload = binary.LittleEndian.AppendUint64(p.Payload[:0], op.State)
					}
				})
			}
			return nil
		})
	}

	shutdown := func() {
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := pp.Shutdown(sctx); err != nil {
			logger.Warn("simulation shutdown incomplete", "error", err)
		}
		pp.Discard()
	}

	if err := g.Wait(); err != nil {
		shutdown()
		return SimReport{}, fmt.Errorf("simulate: %w", err)
	}
	if err := pp.WaitIdle(ctx); err != nil {
		shutdown()
		return SimReport{}, fmt.Errorf("simulate: %w", err)
	}
	shutdown()

	purged := reg.Compact()
	if err := reg.CheckInvariants(); err != nil {
		return SimReport{}, fmt.Errorf("simulate: %w", err)
	}

	report := SimReport{
		Session:      cfg.Session,
		Packets:      cfg.Packets,
		SpawnsSent:   spawns.Load(),
		UpdatesSent:  updates.Load(),
		DespawnsSent: despawns.Load(),
		Counts:       pp.Counts(),
		Pipeline:     pp.Stats(),
		Live:         reg.Count(),
		Pages:        reg.PageCount(),
		PagesPurged:  purged,
		Sequence:     pp.Sequence(),
		PoolMisses:   pp.EventPool().Misses(),
		Elapsed:      time.Since(started),
		Snapshot:     reg.Snapshot(),
	}
	logger.Info("simulation finished",
		"packets", report.Packets,
		"applied", report.Counts.Applied(),
		"rejected", report.Counts.Rejected,
		"failed", report.Counts.Failed,
		"live", report.Live,
		"pages", report.Pages,
		"elapsed", report.Elapsed,
	)
	return report, nil
}

// plannedOp is one synthetic packet a producer sends.
type plannedOp struct {
	Op     Op
	Target uint32 // update and despawn only
	Kind   string // spawn only
	State  uint64 // update only
}

// planProducer returns the packets producer i sends. The plan depends only
// on cfg and i: a producer opens with a spawn, and update and despawn
// targets are drawn below its own spawn count times the number of
// producers, which approximates the ids handed out so far.
func planProducer(cfg SimConfig, i, quota int) []plannedOp {
	rng := rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(i)))
	producers := int64(max(cfg.Producers, 1))
	ops := make([]plannedOp, 0, quota)
	var spawned int64
	for range quota {
		roll := rng.IntN(100)
		switch {
		case spawned == 0 || roll >= cfg.UpdatePercent+cfg.DespawnPercent:
			spawned++
			ops = append(ops, plannedOp{Op: OpSpawn, Kind: cfg.Kinds[rng.IntN(len(cfg.Kinds))]})
		case roll < cfg.UpdatePercent:
			target := uint32(rng.Int64N(spawned * producers))
			ops = append(ops, plannedOp{Op: OpUpdate, Target: target, State: rng.Uint64()})
		default:
			target := uint32(rng.Int64N(spawned * producers))
			ops = append(ops, plannedOp{Op: OpDespawn, Target: target})
		}
	}
	return ops
}
