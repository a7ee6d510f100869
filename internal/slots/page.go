package slots

import "math/bits"

// wordBits is the number of slots tracked by one bitmap word.
const wordBits = 64

// Page is a fixed-capacity block of items plus its occupancy bitmap.
//
// INVARIANTS:
//   - bit i of the bitmap is set iff items[i] is occupied
//   - used equals the number of set bits
//   - if hasAvailable, available addresses a clear bit (it may lag the true
//     lowest free slot, it never points at an occupied one)
//   - !hasAvailable iff every slot is occupied
type Page[T any] struct {
	index        int
	start        uint32
	items        []T
	words        []uint64
	used         int
	available    uint32
	hasAvailable bool
}

func newPage[T any](index, size int, bind func(id uint32, p *Page[T]) T) *Page[T] {
	p := &Page[T]{
		index:        index,
		start:        uint32(index) * uint32(size),
		items:        make([]T, size),
		words:        make([]uint64, (size+wordBits-1)/wordBits),
		hasAvailable: true,
	}
	p.available = p.start
	for i := range p.items {
		p.items[i] = bind(p.start+uint32(i), p)
	}
	return p
}

// Index returns the page's position in the allocator.
func (p *Page[T]) Index() int {
	return p.index
}

// Start returns the id of the page's first slot.
func (p *Page[T]) Start() uint32 {
	return p.start
}

// Len returns the number of slots in the page.
func (p *Page[T]) Len() int {
	return len(p.items)
}

// Used returns the number of occupied slots.
func (p *Page[T]) Used() int {
	return p.used
}

// Empty reports whether no slot in the page is occupied.
func (p *Page[T]) Empty() bool {
	return p.used == 0
}

// Available returns the cached lowest known free id, if any.
func (p *Page[T]) Available() (uint32, bool) {
	return p.available, p.hasAvailable
}

// Words returns a copy of the occupancy bitmap.
func (p *Page[T]) Words() []uint64 {
	out := make([]uint64, len(p.words))
	copy(out, p.words)
	return out
}

func (p *Page[T]) locate(id uint32) (bit int, word int, mask uint64) {
	bit = int(id - p.start)
	return bit, bit / wordBits, uint64(1) << (uint(bit) % wordBits)
}

func (p *Page[T]) isFree(id uint32) bool {
	_, w, mask := p.locate(id)
	return p.words[w]&mask == 0
}

// take marks id occupied, returning the item and whether it was free before.
func (p *Page[T]) take(id uint32) (T, bool) {
	bit, w, mask := p.locate(id)
	if p.words[w]&mask != 0 {
		return p.items[bit], false
	}
	p.words[w] |= mask
	p.used++
	if p.hasAvailable && p.available == id {
		p.available, p.hasAvailable = p.nextFree()
	}
	return p.items[bit], true
}

// release marks id free. Returns false if it was already free.
func (p *Page[T]) release(id uint32) bool {
	_, w, mask := p.locate(id)
	if p.words[w]&mask == 0 {
		return false
	}
	p.words[w] &^= mask
	p.used--
	if !p.hasAvailable || id < p.available {
		p.available = id
		p.hasAvailable = true
	}
	return true
}

// nextFree scans from the start of the page for the lowest clear bit.
func (p *Page[T]) nextFree() (uint32, bool) {
	for w, word := range p.words {
		if word == ^uint64(0) {
			continue
		}
		bit := w*wordBits + bits.TrailingZeros64(^word)
		if bit >= len(p.items) {
			break
		}
		return p.start + uint32(bit), true
	}
	return 0, false
}

// eachActive calls fn for every occupied item in ascending id order,
// stopping early if fn returns false. Returns false if stopped early.
func (p *Page[T]) eachActive(fn func(T) bool) bool {
	for w, word := range p.words {
		for word != 0 {
			tz := bits.TrailingZeros64(word)
			if !fn(p.items[w*wordBits+tz]) {
				return false
			}
			word &= word - 1
		}
	}
	return true
}

func (p *Page[T]) popCount() int {
	n := 0
	for _, word := range p.words {
		n += bits.OnesCount64(word)
	}
	return n
}
