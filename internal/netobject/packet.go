package netobject

import "sync"

// Op is a packet operation.
type Op uint8

const (
	OpSpawn Op = iota + 1
	OpSpawnAt
	OpUpdate
	OpDespawn
)

// String returns the operation name.
func (o Op) String() string {
	switch o {
	case OpSpawn:
		return "spawn"
	case OpSpawnAt:
		return "spawn_at"
	case OpUpdate:
		return "update"
	case OpDespawn:
		return "despawn"
	default:
		return "unknown"
	}
}

// maxPooledPayload is the largest payload buffer a packet keeps when it
// returns to the pool. Packets that grew past it are disposed instead.
const maxPooledPayload = 64 << 10

// Packet is a pooled pipeline event carrying one object operation.
//
// Fields are set by the producer before submission. Payload is owned by the
// packet and reused across checkouts; fill it with SetPayload. Stages run in order, so
// apply-stage writes (ObjectID for spawns, Version) are visible to the
// account stage. Err may be set by concurrent validators and is guarded.
type Packet struct {
	Op       Op
	ObjectID uint32
	Kind     string
	Owner    string
	Payload  []byte

	Version uint64

	mu       sync.Mutex
	err      error
	disposed bool
}

// NewPacket allocates an empty packet. Pipelines use it as the pool factory.
func NewPacket() *Packet {
	return &Packet{}
}

// Initialize resets the packet for reuse, keeping the payload buffer.
func (p *Packet) Initialize() {
	p.Op = 0
	p.ObjectID = 0
	p.Kind = ""
	p.Owner = ""
	p.Payload = p.Payload[:0]
	p.Version = 0

	p.mu.Lock()
	p.err = nil
	p.disposed = false
	p.mu.Unlock()
}

// Cleanup drops references held by the packet. Oversized payload buffers
// are not worth pooling.
func (p *Packet) Cleanup() {
	if cap(p.Payload) > maxPooledPayload {
		p.Payload = nil
		p.mu.Lock()
		p.disposed = true
		p.mu.Unlock()
	}
}

// SetPayload copies b into the packet's payload buffer.
func (p *Packet) SetPayload(b []byte) {
	p.Payload = append(p.Payload[:0], b...)
}

// IsDisposed reports whether the packet should be left out of the pool.
func (p *Packet) IsDisposed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disposed
}

// Err returns the first failure recorded by a handler.
func (p *Packet) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// fail records err as the packet's failure unless one is already set.
// Returns true if this call recorded it.
func (p *Packet) fail(err error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return false
	}
	p.err = &PacketError{Op: p.Op, ObjectID: p.ObjectID, Err: err}
	return true
}

// Result is what observers see of a packet that was applied.
type Result struct {
	Op       Op
	ObjectID uint32
	Kind     string
	Version  uint64
}
