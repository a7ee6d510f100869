// Package netobject is the networked-object layer built on the slot
// allocator and the event pipeline.
//
// A Registry hands out compact object ids from a paged slot allocator so
// ids stay dense and reusable, which keeps replication bitmaps small. A
// PacketPipeline carries spawn, update and despawn packets through three
// stages:
//
//	validate  -> op and payload checks (concurrent, read-only)
//	apply     -> registry mutation (single handler)
//	account   -> counters and observer notification (concurrent)
//
// Simulate drives synthetic traffic through both for load testing and the
// netcore CLI.
package netobject
