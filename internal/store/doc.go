// Package store provides SQLite-backed storage for the loom pipeline.
//
// The store holds four kinds of state:
//   - Operations: batches of raw step descriptors with status lifecycle
//   - Steps: atomic units of an operation, claimed one at a time
//   - Spec entries: the current desired application state, keyed by
//     (app_id, entry_type, key)
//   - Version snapshots: an append-only, gap-free per-app log of full
//     specification captures
//
// # Concurrency
//
// The only hard serialization requirement is step claiming: the
// pending → processing transition is a single conditional UPDATE, and
// zero rows affected means another caller won the claim. Version
// number assignment (max+1) runs inside one transaction and is backed
// by a UNIQUE(app_id, version_number) constraint, so concurrent
// assignment for the same app cannot produce duplicates.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
package store
