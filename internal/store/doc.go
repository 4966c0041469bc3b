// Package store is an optional SQLite journal of workflow runs.
//
// A run is recorded as its initial snapshot (workflows table) followed by
// every emitted update in seq order (updates table). Each update row carries
// the producer's state digest after that update, so Replay can prove that
// folding the journal reproduces exactly what the producer had.
//
// # Invariants
//
// Logical ordering:
//   - Updates are ordered by seq INTEGER from engine.Clock, never by timestamps
//   - Reads use ORDER BY seq ASC
//
// Idempotent appends:
//   - Update ids are content-addressed (ir.UpdateID over workflow, seq and body)
//   - Re-appending the same update is a no-op; a different update at an
//     occupied seq is an error
//
// Canonical storage:
//   - Snapshots and update bodies are stored as RFC 8785 canonical JSON
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Updates must belong to a recorded workflow
package store
