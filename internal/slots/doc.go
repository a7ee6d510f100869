// Package slots implements a bitmap-indexed slot allocator organized into
// fixed-size pages.
//
// Every live networked object is given a stable numeric identity by the
// Allocator. Identities are recycled after deletion: an item is constructed
// once per slot position when its page is created, and from then on it is
// only ever marked free or occupied.
//
// LAYOUT:
//
// Page k owns the absolute id range [k*n, (k+1)*n) where n is the number of
// items per page. The id to page mapping is a pure function of id/n, so pages
// are only ever appended, and only removed from the tail
// (PurgeEmptyTrailingPages). Each page tracks occupancy in a []uint64 bitmap,
// one bit per slot, and caches the lowest known free id as a hint.
//
// Finding a free slot:
//   - the Allocator caches the lowest page index known to hold a free slot
//   - the Page caches the lowest free id it knows about
//   - when an allocation consumes the hint, the page rescans its words from
//     the start, skipping all-ones words
//
// Iteration (ForEachActive, Active) visits occupied slots only, walking the
// set bits of each non-zero word in ascending order.
//
// CONCURRENCY:
//
// An Allocator has no internal synchronization. It is intended for a single
// writer (e.g. the goroutine owning the simulation tick); callers that share
// one across goroutines must serialize access themselves.
package slots
