package netobject

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/netcore/internal/slots"
)

// RegistryConfig shapes a Registry.
type RegistryConfig struct {
	ItemsPerPage int
	MaxPages     int // zero selects the allocator default
	Logger       *slog.Logger
}

// Registry tracks live networked objects. All methods are safe for
// concurrent use; the underlying allocator is guarded by one lock.
type Registry struct {
	mu     sync.RWMutex
	alloc  *slots.Allocator[*Object]
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	opts := []slots.Option{slots.WithLogger(logger)}
	if cfg.MaxPages > 0 {
		opts = append(opts, slots.WithMaxPages(cfg.MaxPages))
	}
	alloc, err := slots.New(cfg.ItemsPerPage, func() *Object { return &Object{} }, opts...)
	if err != nil {
		return nil, fmt.Errorf("netobject: %w", err)
	}
	alloc.OnFree((*Object).reset)

	return &Registry{alloc: alloc, logger: logger}, nil
}

// Spawn creates an object at the lowest free id.
func (r *Registry) Spawn(kind, owner string) (Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj, ok := r.alloc.TryAllocate()
	if !ok {
		return Info{}, ErrRegistryFull
	}
	obj.Kind = kind
	obj.Owner = owner
	obj.Version = 1

	r.logger.Debug("object spawned", "object_id", obj.ID(), "kind", kind, "owner", owner)
	return obj.info(), nil
}

// SpawnAt creates an object at a specific id, as when replicating an id
// chosen by a remote authority.
func (r *Registry) SpawnAt(id uint32, kind, owner string) (Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj, wasFree, err := r.alloc.TryAllocateID(id)
	if err != nil {
		if slots.IsCapacityError(err) {
			return Info{}, fmt.Errorf("%w: %w", ErrRegistryFull, err)
		}
		return Info{}, err
	}
	if !wasFree {
		return Info{}, fmt.Errorf("%w: %d", ErrIDInUse, id)
	}
	obj.Kind = kind
	obj.Owner = owner
	obj.Version = 1

	r.logger.Debug("object spawned", "object_id", id, "kind", kind, "owner", owner, "explicit", true)
	return obj.info(), nil
}

// Update replaces an object's state and returns its new version.
func (r *Registry) Update(id uint32, state []byte) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj, ok := r.live(id)
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownObject, id)
	}
	obj.State = append(obj.State[:0], state...)
	obj.Version++
	return obj.Version, nil
}

// Despawn frees an object's id for reuse.
func (r *Registry) Despawn(id uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj, ok := r.live(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownObject, id)
	}
	r.alloc.TryFree(obj)
	r.logger.Debug("object despawned", "object_id", id)
	return nil
}

// Lookup returns a copy of the live object with the given id.
func (r *Registry) Lookup(id uint32) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	obj, ok := r.live(id)
	if !ok {
		return Info{}, false
	}
	return obj.info(), true
}

// live returns the object bound to id if its slot is occupied.
// Callers hold r.mu.
func (r *Registry) live(id uint32) (*Object, bool) {
	obj, ok := r.alloc.Get(id)
	if !ok || obj.IsFree() {
		return nil, false
	}
	return obj, true
}

// Live returns copies of every live object in ascending id order.
func (r *Registry) Live() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, r.alloc.ActiveCount())
	for obj := range r.alloc.Active() {
		out = append(out, obj.info())
	}
	return out
}

// Count returns the number of live objects.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.alloc.ActiveCount()
}

// PageCount returns the number of allocator pages.
func (r *Registry) PageCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.alloc.PageCount()
}

// Snapshot copies the registry's occupancy.
func (r *Registry) Snapshot() slots.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.alloc.Snapshot()
}

// Restore re-occupies the ids recorded in s. Restored objects carry no
// kind, owner or state until updated. The registry must be empty.
func (r *Registry) Restore(s slots.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.alloc.Restore(s); err != nil {
		return fmt.Errorf("netobject: restore: %w", err)
	}
	r.alloc.ForEachActive(func(obj *Object) bool {
		obj.Version = 1
		return true
	})
	r.logger.Info("registry restored", "objects", r.alloc.ActiveCount(), "pages", r.alloc.PageCount())
	return nil
}

// Compact releases empty pages at the end of the id space and returns how
// many were removed.
func (r *Registry) Compact() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.alloc.PurgeEmptyTrailingPages()
	if n > 0 {
		r.logger.Debug("registry compacted", "pages_removed", n, "pages", r.alloc.PageCount())
	}
	return n
}

// CheckInvariants verifies the allocator's internal consistency.
func (r *Registry) CheckInvariants() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.alloc.CheckInvariants()
}
