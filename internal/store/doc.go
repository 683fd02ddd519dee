// Package store is the SQLite dispatch journal.
//
// Every dispatch outcome, invoked or dropped, becomes one append-only row
// in the dispatches table. Rows are written by Journal, an engine.Observer,
// and read back by the trace command and the conformance harness.
//
// # Ordering
//
// All ordering uses seq (the dispatcher's logical clock), never wall time:
//
//	ORDER BY seq ASC, event_id ASC COLLATE BINARY
//
// Nested dispatches finish before the dispatch that posted them, so rows
// are written in completion order but read back in arrival order.
//
// # Identity
//
// Row IDs are ir.DispatchID over (event_id, routine, params, depth, seq).
// Writes use ON CONFLICT DO NOTHING, so journaling the same run twice is
// harmless.
//
// # Database Configuration
//
//   - WAL mode: traces can be read during a run
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
package store
