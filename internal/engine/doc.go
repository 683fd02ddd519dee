// Package engine implements the reentrant dispatcher.
//
// A host event names a routine and carries up to two scalar parameters.
// Dispatch decides whether a new nested invocation may start, isolates the
// interpreter's global state and the routine's local variables from the
// invocation already on the stack, runs the routine through the external
// Evaluator, and unwinds everything in reverse order.
//
// ARCHITECTURE:
//
// Single Logical Executor:
// Script code never runs in parallel. "Nesting" means the executor's call
// stack grows because a routine body (or a host callback reached from it)
// triggers another Dispatch before returning. Every level runs
// Admit → Save → Backup → Invoke → Restore to completion before control
// returns to whatever triggered it.
//
// Dispatch State Machine:
//
//	Idle → Admitting → ContextSaved → VarsBackedUp → Invoking → Restoring → Idle
//	            │             │
//	            └→ Idle       └→ Idle   (deny / backup exhaustion: event dropped)
//
// Two independent gates run in Admitting: the global AdmissionController
// (interruptibility + nesting ceiling, with an always-safe bypass) and the
// per-routine instance limit.
//
// Ordering:
// Context snapshots and variable backup records nest in strict LIFO order.
// The admission depth, the snapshot stack depth and the number of levels in
// Invoking are equal whenever no level is mid-transition.
//
// Drop Policy:
// Denied and aborted events are dropped. Nothing is queued or retried and
// the host only sees a Dropped outcome; the reason is logged at debug level
// and passed to the Observer.
//
// The Pump is the host delivery side: Post is safe from any goroutine and Run
// drains posted events on the executor goroutine.
package engine
