package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/reentry/internal/engine"
	"github.com/roach88/reentry/internal/routine"
	"github.com/roach88/reentry/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s%s depth=%d %s",
				ev.Seq, strings.Repeat("  ", ev.Depth), ev.Routine, ev.Depth, ev.Outcome)
			if ev.Reason != "" {
				fmt.Fprintf(&buf, " (%s)", ev.Reason)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// AssertionContext gives assertions access to the engine after the run.
type AssertionContext struct {
	Ctx        context.Context
	Store      *store.Store
	Dispatcher *engine.Dispatcher
	Table      *routine.Table
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns one message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertDepthMax:
			err = assertDepthMax(result, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: trace_count requires a journal", i)
			} else {
				err = assertTraceCount(actx, result.Trace, assertion)
			}
		case AssertActiveAfter:
			if actx == nil || actx.Table == nil {
				err = fmt.Errorf("assertion[%d]: active_after requires a routine table", i)
			} else {
				err = assertActiveAfter(actx.Table, assertion)
			}
		case AssertBalanced:
			if actx == nil || actx.Dispatcher == nil {
				err = fmt.Errorf("assertion[%d]: balanced requires a dispatcher", i)
			} else {
				err = assertBalanced(actx.Dispatcher)
			}
		case AssertErrorLevel:
			if actx == nil || actx.Dispatcher == nil {
				err = fmt.Errorf("assertion[%d]: error_level requires a dispatcher", i)
			} else {
				err = assertErrorLevel(actx.Dispatcher, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}

func assertDepthMax(result *Result, a Assertion) error {
	want, _ := a.Value.(int)
	if result.PeakDepth != want {
		return &AssertionError{
			Type:     AssertDepthMax,
			Expected: fmt.Sprintf("peak depth %d", want),
			Actual:   fmt.Sprintf("peak depth %d", result.PeakDepth),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertTraceOrder checks the routines of invoked events, in seq order,
// equal a.Routines exactly.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	var got []string
	for _, ev := range trace {
		if ev.Outcome == "invoked" {
			got = append(got, ev.Routine)
		}
	}
	if len(got) == len(a.Routines) {
		match := true
		for i := range got {
			if !strings.EqualFold(got[i], a.Routines[i]) {
				match = false
				break
			}
		}
		if match {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: strings.Join(a.Routines, " → "),
		Actual:   strings.Join(got, " → "),
		Trace:    trace,
	}
}

// assertTraceCount counts journal rows matching a.Where.
func assertTraceCount(actx *AssertionContext, trace []TraceEvent, a Assertion) error {
	recs, err := actx.Store.QueryDispatchesWhere(actx.Ctx, a.Where, 0)
	if err != nil {
		return fmt.Errorf("trace_count %q: %w", a.Where, err)
	}
	if len(recs) != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d rows where %s", a.Count, a.Where),
			Actual:   fmt.Sprintf("%d rows", len(recs)),
			Trace:    trace,
		}
	}
	return nil
}

func assertActiveAfter(tbl *routine.Table, a Assertion) error {
	r, ok := tbl.FindRoutine(a.Routine)
	if !ok {
		return fmt.Errorf("active_after: unknown routine %q", a.Routine)
	}
	if r.Active() != a.Count {
		return &AssertionError{
			Type:     AssertActiveAfter,
			Expected: fmt.Sprintf("%s active %d", r.Name(), a.Count),
			Actual:   fmt.Sprintf("%s active %d", r.Name(), r.Active()),
		}
	}
	return nil
}

// assertBalanced checks every per-invocation resource was given back.
func assertBalanced(d *engine.Dispatcher) error {
	var problems []string
	if n := d.Depth(); n != 0 {
		problems = append(problems, fmt.Sprintf("depth %d", n))
	}
	if n := d.SnapshotDepth(); n != 0 {
		problems = append(problems, fmt.Sprintf("%d snapshots", n))
	}
	if n := d.LiveBackups(); n != 0 {
		problems = append(problems, fmt.Sprintf("%d live backups", n))
	}
	if len(problems) > 0 {
		return &AssertionError{
			Type:     AssertBalanced,
			Expected: "depth 0, 0 snapshots, 0 live backups",
			Actual:   strings.Join(problems, ", "),
		}
	}
	return nil
}

func assertErrorLevel(d *engine.Dispatcher, a Assertion) error {
	want, _ := a.Value.(string)
	if got := d.Globals().ErrorLevel; got != want {
		return &AssertionError{
			Type:     AssertErrorLevel,
			Expected: fmt.Sprintf("%q", want),
			Actual:   fmt.Sprintf("%q", got),
		}
	}
	return nil
}
