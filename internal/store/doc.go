// Package store provides SQLite-backed durable storage for allocator
// occupancy snapshots.
//
// A snapshot records which slot ids were live in an allocator at one
// logical tick of a session. Each page's occupancy bitmap is stored as a
// BLOB of little-endian 64-bit words.
//
// # Identity
//
// Snapshot ids are content addresses: SHA-256 over the canonical JSON of
// the snapshot with domain separation (see internal/canonical). Writing the
// same snapshot twice is a no-op.
//
// # Ordering
//
// Queries order by tick then id, never by wall-clock time, so listings are
// identical across runs.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
