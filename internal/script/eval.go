package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/reentry/internal/engine"
	"github.com/roach88/reentry/internal/ir"
)

// Evaluator runs routine bodies made of ir.Action steps.
// Stateless apart from its logger; one Evaluator serves every routine.
type Evaluator struct {
	logger *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = l
	}
}

// New creates an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ engine.Evaluator = (*Evaluator)(nil)

// Execute runs call.Routine's body to completion.
//
// The body ends at a return, exitapp or reload action, at the first failing
// action, or after its last action (returning empty). Failures come back as
// *Error; the dispatcher passes them to the host untouched.
func (e *Evaluator) Execute(ctx context.Context, call *engine.Call) (ir.Value, error) {
	for i, a := range call.Routine.Body() {
		ret, done, err := e.step(ctx, call, a)
		if err != nil {
			var serr *Error
			if errors.As(err, &serr) {
				serr.Step = i
				return ir.Empty{}, serr
			}
			return ir.Empty{}, &Error{
				Routine: call.Routine.Name(),
				Step:    i,
				Op:      a.Op,
				Message: err.Error(),
			}
		}
		if done {
			return ret, nil
		}
	}
	return ir.Empty{}, nil
}

func (e *Evaluator) step(ctx context.Context, call *engine.Call, a ir.Action) (ir.Value, bool, error) {
	r := call.Routine
	if lo, hi, ok := ir.Arity(a.Op); ok {
		if err := arity(a, lo, hi); err != nil {
			return nil, false, err
		}
	}

	switch a.Op {
	case ir.OpSet, ir.OpAdd, ir.OpConcat:
		slot, ok := r.Slot(a.Args[0])
		if !ok {
			return nil, false, fmt.Errorf("unknown variable %q", a.Args[0])
		}
		v, err := resolve(r, a.Args[1])
		if err != nil {
			return nil, false, err
		}
		switch a.Op {
		case ir.OpSet:
			slot.Set(v)
		case ir.OpAdd:
			x, ok := ir.AsInt(slot.Value())
			if !ok {
				return nil, false, fmt.Errorf("%s is not a number: %q", a.Args[0], ir.Text(slot.Value()))
			}
			y, ok := ir.AsInt(v)
			if !ok {
				return nil, false, fmt.Errorf("operand is not a number: %q", ir.Text(v))
			}
			slot.Set(ir.Int(x + y))
		case ir.OpConcat:
			slot.Set(ir.String(ir.Text(slot.Value()) + ir.Text(v)))
		}
		return nil, false, nil

	case ir.OpReturn:
		if len(a.Args) == 0 {
			return ir.Empty{}, true, nil
		}
		v, err := resolve(r, a.Args[0])
		if err != nil {
			return nil, false, err
		}
		return v, true, nil

	case ir.OpDispatch:
		ev := engine.Event{Routine: a.Args[0]}
		for _, arg := range a.Args[1:] {
			v, err := resolve(r, arg)
			if err != nil {
				return nil, false, err
			}
			ev.Params = append(ev.Params, v)
		}
		out := call.Dispatch(ctx, ev)
		e.logger.Debug("nested dispatch",
			"from", r.Name(),
			"routine", ev.Routine,
			"outcome", string(out.Kind),
			"reason", string(out.Reason),
		)
		return nil, false, nil

	case ir.OpCritical:
		switch a.Args[0] {
		case "on":
			call.SetInterruptible(false)
		case "off":
			call.SetInterruptible(true)
		default:
			return nil, false, fmt.Errorf("critical takes on or off, got %q", a.Args[0])
		}
		return nil, false, nil

	case ir.OpSetError:
		v, err := resolve(r, a.Args[0])
		if err != nil {
			return nil, false, err
		}
		call.Globals.ErrorLevel = ir.Text(v)
		return nil, false, nil

	case ir.OpSetFlag:
		flag, err := engine.ParseFlag(a.Args[0])
		if err != nil {
			return nil, false, err
		}
		v, err := resolve(r, a.Args[1])
		if err != nil {
			return nil, false, err
		}
		n, ok := ir.AsInt(v)
		if !ok {
			return nil, false, fmt.Errorf("flag value is not a number: %q", ir.Text(v))
		}
		call.Globals.Flags[flag] = n
		return nil, false, nil

	case ir.OpFail:
		msg := "failed"
		if len(a.Args) > 0 {
			v, err := resolve(r, a.Args[0])
			if err != nil {
				return nil, false, err
			}
			msg = ir.Text(v)
		}
		return nil, false, &Error{Routine: r.Name(), Op: a.Op, Message: msg, Err: ErrFail}

	case ir.OpExitApp, ir.OpReload:
		call.Request(a.Op)
		return ir.Empty{}, true, nil

	default:
		return nil, false, fmt.Errorf("unknown action %q", a.Op)
	}
}

func arity(a ir.Action, lo, hi int) error {
	if n := len(a.Args); n < lo || n > hi {
		if lo == hi {
			return fmt.Errorf("%s takes %d argument(s), got %d", a.Op, lo, n)
		}
		return fmt.Errorf("%s takes %d to %d arguments, got %d", a.Op, lo, hi, n)
	}
	return nil
}
