package engine

import (
	"context"

	"github.com/roach88/reentry/internal/ir"
	"github.com/roach88/reentry/internal/routine"
)

// Evaluator runs a routine body. It is the script interpreter's statement
// executor; the dispatcher never looks inside a body.
//
// Execute may call call.Dispatch to trigger nested invocations. A returned
// error is a routine-body failure and is passed through in ReturnValue.Err
// without inspection.
type Evaluator interface {
	Execute(ctx context.Context, call *Call) (ir.Value, error)
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(ctx context.Context, call *Call) (ir.Value, error)

// Execute calls f(ctx, call).
func (f EvaluatorFunc) Execute(ctx context.Context, call *Call) (ir.Value, error) {
	return f(ctx, call)
}

// ReturnValue is what an invocation hands back to the host, uninterpreted.
type ReturnValue struct {
	// Value is the routine's return value, captured before variable restore.
	Value ir.Value

	// Err is the routine-body failure, if any.
	Err error

	// Request is a terminal process request (exitapp or reload) the body
	// made. The host decides what to do with it.
	Request ir.Op
}

// Call is the evaluator's view of one admitted invocation.
type Call struct {
	// Event is the host event being served.
	Event Event

	// Routine is the invoked routine. Its slots belong to this invocation
	// until it returns.
	Routine *routine.Routine

	// Globals is the live global execution state.
	Globals *Globals

	// Depth is this invocation's nesting level, 1 for the outermost.
	Depth int

	d       *Dispatcher
	request ir.Op
}

// Dispatch delivers a nested host event synchronously through the same
// dispatcher. The nested invocation runs to completion before Dispatch
// returns.
func (c *Call) Dispatch(ctx context.Context, ev Event) Outcome {
	if c.d == nil {
		return Outcome{Kind: OutcomeDropped, Reason: ReasonNotInterruptible, Routine: ev.Routine}
	}
	return c.d.Dispatch(ctx, ev)
}

// Interruptible reports whether nested invocations may currently start.
func (c *Call) Interruptible() bool {
	if c.d == nil {
		return false
	}
	return c.d.admission.Interruptible()
}

// SetInterruptible enters (false) or leaves (true) a critical region. The
// setting lasts until this invocation returns.
func (c *Call) SetInterruptible(v bool) {
	if c.d != nil {
		c.d.admission.SetInterruptible(v)
	}
}

// Request records a terminal process request for the host.
func (c *Call) Request(op ir.Op) {
	c.request = op
}

// BindAndCall binds the event's first two parameters into the routine's
// first two formal slots and runs the body.
//
// Remaining formals keep their declared default or stay empty. Host
// parameters beyond the routine's formals are ignored. The return value is
// copied out before this function returns, so it is safe from the variable
// restore that follows.
func BindAndCall(ctx context.Context, call *Call, eval Evaluator) ReturnValue {
	r := call.Routine
	r.ApplyDefaults()

	slots := r.Slots()
	nformals := len(r.Params())
	for i, p := range call.Event.Params {
		if i >= 2 || i >= nformals {
			break
		}
		if p == nil {
			p = ir.Empty{}
		}
		slots[i].Set(p)
	}

	v, err := eval.Execute(ctx, call)
	if v == nil {
		v = ir.Empty{}
	}
	return ReturnValue{Value: v, Err: err, Request: call.request}
}
