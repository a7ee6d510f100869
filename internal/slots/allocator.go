package slots

import (
	"fmt"
	"io"
	"iter"
	"log/slog"
	"math"
)

// DefaultMaxItems bounds the id space when WithMaxPages is not given.
// The page ceiling is DefaultMaxItems/itemsPerPage (at least one page).
const DefaultMaxItems = 1 << 20

// noPage marks the absence of a cached page index.
const noPage = -1

// Option configures an Allocator.
type Option func(*options)

type options struct {
	maxPages int
	logger   *slog.Logger
}

// WithMaxPages sets the maximum number of pages the allocator may grow to.
// Requests that would need more pages fail with a CapacityError.
func WithMaxPages(n int) Option {
	return func(o *options) {
		o.maxPages = n
	}
}

// WithLogger sets the logger used for misuse warnings.
// Defaults to a logger that discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Allocator hands out stable numeric identities from a growable sequence of
// fixed-size pages.
//
// INVARIANTS:
//   - pages[k].Start() == k*itemsPerPage for every k
//   - availPage, if set, is the lowest page index holding a free slot, and
//     every page below it is full
//
// Not safe for concurrent use.
type Allocator[T Item[T]] struct {
	itemsPerPage int
	maxPages     int
	newItem      func() T
	onFree       func(T)
	logger       *slog.Logger
	pages        []*Page[T]
	availPage    int
}

// New creates an Allocator with itemsPerPage slots per page. newItem is
// called once per slot when a page is created; the allocator binds the
// returned item to its id and page.
func New[T Item[T]](itemsPerPage int, newItem func() T, opts ...Option) (*Allocator[T], error) {
	if itemsPerPage <= 0 {
		return nil, ErrInvalidPageSize
	}
	if newItem == nil {
		return nil, fmt.Errorf("slots: nil item constructor")
	}

	o := options{
		maxPages: max(DefaultMaxItems/itemsPerPage, 1),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxPages <= 0 {
		return nil, fmt.Errorf("slots: max pages must be positive, got %d", o.maxPages)
	}
	if uint64(o.maxPages)*uint64(itemsPerPage) > 1<<32 {
		return nil, fmt.Errorf("slots: %d pages of %d items overflow the 32-bit id space",
			o.maxPages, itemsPerPage)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Allocator[T]{
		itemsPerPage: itemsPerPage,
		maxPages:     o.maxPages,
		newItem:      newItem,
		logger:       o.logger,
		availPage:    noPage,
	}, nil
}

// OnFree registers a hook invoked after an item is freed by TryFree.
// Passing nil removes the hook.
func (a *Allocator[T]) OnFree(fn func(T)) {
	a.onFree = fn
}

// ItemsPerPage returns the fixed page size.
func (a *Allocator[T]) ItemsPerPage() int {
	return a.itemsPerPage
}

// MaxPages returns the page ceiling.
func (a *Allocator[T]) MaxPages() int {
	return a.maxPages
}

// PageCount returns the number of pages currently allocated.
func (a *Allocator[T]) PageCount() int {
	return len(a.pages)
}

// Page returns page i, or nil if it does not exist.
func (a *Allocator[T]) Page(i int) *Page[T] {
	if i < 0 || i >= len(a.pages) {
		return nil
	}
	return a.pages[i]
}

// PageWithAvailability returns the cached lowest page index holding a free
// slot, or false if every page is full.
func (a *Allocator[T]) PageWithAvailability() (int, bool) {
	return a.availPage, a.availPage != noPage
}

// ActiveCount returns the number of occupied slots.
func (a *Allocator[T]) ActiveCount() int {
	n := 0
	for _, p := range a.pages {
		n += p.used
	}
	return n
}

// TryAllocate occupies the lowest free slot in the cached page with
// availability, appending a new page when every page is full.
// Returns false only when the page ceiling has been reached.
func (a *Allocator[T]) TryAllocate() (T, bool) {
	if a.availPage == noPage {
		if err := a.grow(); err != nil {
			a.logger.Warn("slot allocation failed", "error", err, "pages", len(a.pages))
			var zero T
			return zero, false
		}
	}

	p := a.pages[a.availPage]
	id, _ := p.Available()
	item, _ := p.take(id)
	if !p.hasAvailable {
		a.advance(a.availPage + 1)
	}
	return item, true
}

// TryAllocateID occupies the slot bound to id, appending pages in order
// until id's owning page exists.
//
// wasFree reports whether the slot was free before the call; an occupied
// slot is returned unchanged with wasFree=false, and the caller decides
// whether that is an error. A CapacityError is returned when id lies
// beyond the page ceiling.
func (a *Allocator[T]) TryAllocateID(id uint32) (item T, wasFree bool, err error) {
	pageIdx := a.pageIndex(id)
	if pageIdx >= a.maxPages {
		return item, false, &CapacityError{ID: id, MaxPages: a.maxPages, ItemsPerPage: a.itemsPerPage}
	}
	for len(a.pages) <= pageIdx {
		if err := a.grow(); err != nil {
			return item, false, err
		}
	}

	p := a.pages[pageIdx]
	item, wasFree = p.take(id)
	if wasFree && pageIdx == a.availPage && !p.hasAvailable {
		a.advance(pageIdx + 1)
	}
	return item, wasFree, nil
}

// TryFree marks item's slot free and invokes the free hook.
// Returns false if the slot was already free or its page does not exist.
func (a *Allocator[T]) TryFree(item T) bool {
	id := item.ID()
	pageIdx := a.pageIndex(id)
	if pageIdx >= len(a.pages) {
		a.logger.Warn("free of slot outside allocated pages", "id", id, "pages", len(a.pages))
		return false
	}

	p := a.pages[pageIdx]
	if !p.release(id) {
		a.logger.Debug("free of already free slot", "id", id)
		return false
	}
	if a.onFree != nil {
		a.onFree(item)
	}
	if a.availPage == noPage || pageIdx < a.availPage {
		a.availPage = pageIdx
	}
	return true
}

// Get returns the item bound to id without allocating.
// Returns false if id's page does not exist.
func (a *Allocator[T]) Get(id uint32) (T, bool) {
	pageIdx := a.pageIndex(id)
	if pageIdx >= len(a.pages) {
		var zero T
		return zero, false
	}
	p := a.pages[pageIdx]
	return p.items[id-p.start], true
}

// IsAvailable reports whether id's slot is free. Ids whose page does not
// exist yet are available.
func (a *Allocator[T]) IsAvailable(id uint32) bool {
	pageIdx := a.pageIndex(id)
	if pageIdx >= len(a.pages) {
		return true
	}
	return a.pages[pageIdx].isFree(id)
}

// ForEachActive calls fn for every occupied item, ascending by id, until fn
// returns false. Free slots are never visited.
func (a *Allocator[T]) ForEachActive(fn func(T) bool) {
	for _, p := range a.pages {
		if p.used == 0 {
			continue
		}
		if !p.eachActive(fn) {
			return
		}
	}
}

// Active returns an iterator over occupied items, ascending by id.
func (a *Allocator[T]) Active() iter.Seq[T] {
	return func(yield func(T) bool) {
		a.ForEachActive(yield)
	}
}

// PurgeEmptyTrailingPages removes fully empty pages from the tail and
// returns how many were removed. Pages are never removed from the middle:
// doing so would shift the id to page mapping of every later page.
func (a *Allocator[T]) PurgeEmptyTrailingPages() int {
	n := 0
	for len(a.pages) > 0 {
		last := len(a.pages) - 1
		if !a.pages[last].Empty() {
			break
		}
		a.pages[last] = nil
		a.pages = a.pages[:last]
		n++
	}
	if a.availPage >= len(a.pages) {
		a.availPage = noPage
	}
	return n
}

func (a *Allocator[T]) pageIndex(id uint32) int {
	return int(id / uint32(a.itemsPerPage))
}

// grow appends one page.
func (a *Allocator[T]) grow() error {
	if len(a.pages) >= a.maxPages {
		return &CapacityError{
			ID:           a.firstIDPast(len(a.pages)),
			MaxPages:     a.maxPages,
			ItemsPerPage: a.itemsPerPage,
		}
	}
	idx := len(a.pages)
	p := newPage(idx, a.itemsPerPage, func(id uint32, p *Page[T]) T {
		item := a.newItem()
		item.Bind(id, p)
		return item
	})
	a.pages = append(a.pages, p)
	if a.availPage == noPage {
		a.availPage = idx
	}
	return nil
}

// firstIDPast returns the first id of page index pages, saturating at the
// largest uint32.
func (a *Allocator[T]) firstIDPast(pages int) uint32 {
	return uint32(min(uint64(pages)*uint64(a.itemsPerPage), math.MaxUint32))
}

// advance moves the cached page index to the first page at or after from
// with a free slot.
func (a *Allocator[T]) advance(from int) {
	for i := from; i < len(a.pages); i++ {
		if a.pages[i].hasAvailable {
			a.availPage = i
			return
		}
	}
	a.availPage = noPage
}

// CheckInvariants verifies page contiguity, bitmap and counter consistency,
// hint validity and the cached page index. Intended for tests and tooling.
func (a *Allocator[T]) CheckInvariants() error {
	for k, p := range a.pages {
		if p.index != k {
			return fmt.Errorf("page %d: index %d", k, p.index)
		}
		if want := uint32(k) * uint32(a.itemsPerPage); p.start != want {
			return fmt.Errorf("page %d: start %d, want %d", k, p.start, want)
		}
		if got := p.popCount(); got != p.used {
			return fmt.Errorf("page %d: %d bits set, used=%d", k, got, p.used)
		}
		if tail := len(p.items) % wordBits; tail != 0 {
			if p.words[len(p.words)-1]>>uint(tail) != 0 {
				return fmt.Errorf("page %d: bits set beyond page end", k)
			}
		}
		if p.hasAvailable {
			if p.available < p.start || p.available >= p.start+uint32(len(p.items)) {
				return fmt.Errorf("page %d: available %d outside page", k, p.available)
			}
			if !p.isFree(p.available) {
				return fmt.Errorf("page %d: available %d is occupied", k, p.available)
			}
		} else if p.used != len(p.items) {
			return fmt.Errorf("page %d: no available index but %d/%d used", k, p.used, len(p.items))
		}
		for i, item := range p.items {
			if want := p.start + uint32(i); item.ID() != want {
				return fmt.Errorf("page %d: item %d has id %d, want %d", k, i, item.ID(), want)
			}
		}
	}

	if a.availPage == noPage {
		for k, p := range a.pages {
			if p.hasAvailable {
				return fmt.Errorf("no cached page but page %d has a free slot", k)
			}
		}
		return nil
	}
	if a.availPage >= len(a.pages) {
		return fmt.Errorf("cached page %d beyond %d pages", a.availPage, len(a.pages))
	}
	if !a.pages[a.availPage].hasAvailable {
		return fmt.Errorf("cached page %d is full", a.availPage)
	}
	for k := 0; k < a.availPage; k++ {
		if a.pages[k].hasAvailable {
			return fmt.Errorf("page %d has a free slot below cached page %d", k, a.availPage)
		}
	}
	return nil
}
