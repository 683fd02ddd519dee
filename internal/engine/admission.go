package engine

import (
	"github.com/roach88/reentry/internal/ir"
	"github.com/roach88/reentry/internal/routine"
)

// DefaultMaxDepth is the default ceiling on nested invocations.
const DefaultMaxDepth = 10

// DefaultAlwaysSafe lists the body actions that are admitted even when the
// interpreter is saturated or non-interruptible. Terminating or reloading the
// process must never be starved by the events that made it necessary.
var DefaultAlwaysSafe = []ir.Op{ir.OpExitApp, ir.OpReload}

// Reason explains why an event was dropped.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonUnknownRoutine   Reason = "unknown_routine"
	ReasonNotInterruptible Reason = "not_interruptible"
	ReasonDepthSaturated   Reason = "depth_saturated"
	ReasonInstanceLimit    Reason = "instance_limit"
	ReasonBackupExhausted  Reason = "backup_exhausted"
)

// Decision is the result of an admission gate.
type Decision struct {
	Allow      bool
	Reason     Reason // Set when Allow is false
	AlwaysSafe bool   // Admitted through the always-safe bypass
}

// AdmissionController owns the process-wide admission counters.
//
// Two gates are kept separate on purpose:
//   - Admit: global gate on interruptibility and nesting depth
//   - CheckInstances: per-routine gate on active-instance count
//
// Admit increments the depth on Allow; Release undoes it. A Deny never
// changes any counter.
//
// Not safe for concurrent use: only the dispatcher mutates it, from the
// executor goroutine.
type AdmissionController struct {
	depth         int
	maxDepth      int
	interruptible bool
	alwaysSafe    map[ir.Op]bool
}

// NewAdmissionController creates a controller with the given nesting ceiling.
// The interpreter starts interruptible. When no always-safe ops are given,
// DefaultAlwaysSafe is used.
func NewAdmissionController(maxDepth int, alwaysSafe ...ir.Op) *AdmissionController {
	if len(alwaysSafe) == 0 {
		alwaysSafe = DefaultAlwaysSafe
	}
	safe := make(map[ir.Op]bool, len(alwaysSafe))
	for _, op := range alwaysSafe {
		safe[op] = true
	}
	return &AdmissionController{
		maxDepth:      maxDepth,
		interruptible: true,
		alwaysSafe:    safe,
	}
}

// Admit decides whether a new nested invocation of r may begin.
//
// Allows when the interpreter is interruptible and the current depth is
// below the ceiling. A routine whose first body action is always-safe is
// allowed regardless of both conditions.
func (a *AdmissionController) Admit(r *routine.Routine) Decision {
	if a.alwaysSafe[r.Decl().FirstOp()] {
		a.enter()
		return Decision{Allow: true, AlwaysSafe: true}
	}
	if !a.interruptible {
		return Decision{Reason: ReasonNotInterruptible}
	}
	if a.depth >= a.maxDepth {
		return Decision{Reason: ReasonDepthSaturated}
	}
	a.enter()
	return Decision{Allow: true}
}

// CheckInstances is the per-routine gate: it refuses a routine that already
// has MaxInstances invocations on the stack. It never mutates state.
func (a *AdmissionController) CheckInstances(r *routine.Routine) Decision {
	if limit := r.MaxInstances(); limit > 0 && r.Active() >= limit {
		return Decision{Reason: ReasonInstanceLimit}
	}
	return Decision{Allow: true}
}

// Release undoes one successful Admit.
// Panics on underflow: that is always a dispatcher bug.
func (a *AdmissionController) Release() {
	if a.depth == 0 {
		panic("admission depth underflow")
	}
	a.depth--
}

func (a *AdmissionController) enter() {
	a.depth++
}

// Depth returns the current nested depth.
func (a *AdmissionController) Depth() int {
	return a.depth
}

// MaxDepth returns the configured nesting ceiling.
func (a *AdmissionController) MaxDepth() int {
	return a.maxDepth
}

// Interruptible reports whether new invocations may currently preempt the
// running one.
func (a *AdmissionController) Interruptible() bool {
	return a.interruptible
}

// SetInterruptible enters (false) or leaves (true) a critical region.
func (a *AdmissionController) SetInterruptible(v bool) {
	a.interruptible = v
}

// IsAlwaysSafe reports whether op bypasses the global gate.
func (a *AdmissionController) IsAlwaysSafe(op ir.Op) bool {
	return a.alwaysSafe[op]
}
