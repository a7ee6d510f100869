package slots

// Item is the capability an allocator slot must provide.
//
// Bind is called exactly once per item, when its page is created. It fixes
// the item's id to page.Start()+position and records the owning page.
type Item[T any] interface {
	ID() uint32
	Bind(id uint32, page *Page[T])
	IsFree() bool
}

// Slot is a plain value implementing Item, intended to be embedded:
//
//	type Object struct {
//		slots.Slot[*Object]
//		Name string
//	}
//
// *Object then satisfies Item[*Object].
type Slot[T any] struct {
	id   uint32
	page *Page[T]
}

// ID returns the slot's absolute id.
func (s *Slot[T]) ID() uint32 {
	return s.id
}

// Bind records the slot's id and owning page.
func (s *Slot[T]) Bind(id uint32, page *Page[T]) {
	s.id = id
	s.page = page
}

// Page returns the owning page, or nil if the slot was never bound.
func (s *Slot[T]) Page() *Page[T] {
	return s.page
}

// IsFree reports whether the slot is currently unoccupied.
// An unbound slot is always free.
func (s *Slot[T]) IsFree() bool {
	if s.page == nil {
		return true
	}
	return s.page.isFree(s.id)
}
