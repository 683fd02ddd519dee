package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reentry/internal/ir"
)

func TestDispatch_CounterBindsTwoParams(t *testing.T) {
	counter := mustRoutine(t, ir.RoutineDecl{Name: "Counter", Params: params("x", "y", "z")})
	var seen []ir.Value

	eval := scriptedEvaluator{
		"Counter": func(_ context.Context, c *Call) (ir.Value, error) {
			seen = []ir.Value{slotValue(t, c, "x"), slotValue(t, c, "y"), slotValue(t, c, "z")}
			x, _ := ir.AsInt(seen[0])
			y, _ := ir.AsInt(seen[1])
			assert.Equal(t, 1, c.Routine.Active())
			assert.Equal(t, 1, c.Depth)
			return ir.Int(x + y), nil
		},
	}
	d, _ := newTestDispatcher(t, mustTable(t, counter), eval)

	out := d.Dispatch(context.Background(), Event{Routine: "Counter", Params: []ir.Value{ir.Int(5), ir.Int(7)}})

	require.True(t, out.Invoked())
	assert.Equal(t, ir.Value(ir.Int(12)), out.Return.Value)
	assert.NoError(t, out.Return.Err)
	assert.Equal(t, []ir.Value{ir.Int(5), ir.Int(7), ir.Empty{}}, seen)
	assert.Equal(t, 0, counter.Active())
	assert.Equal(t, 0, d.Depth())
	assert.Equal(t, "ev-1", out.EventID)
	assert.Equal(t, int64(1), out.Seq)
}

func TestDispatch_ExtraHostParamsIgnoredAndDefaultsKept(t *testing.T) {
	r := mustRoutine(t, ir.RoutineDecl{Name: "R", Params: []ir.ParamDecl{
		{Name: "a"},
		{Name: "b", Default: ir.String("dflt-b")},
		{Name: "c", Default: ir.String("dflt-c")},
	}})
	var got []ir.Value
	eval := scriptedEvaluator{"R": func(_ context.Context, c *Call) (ir.Value, error) {
		got = []ir.Value{slotValue(t, c, "a"), slotValue(t, c, "b"), slotValue(t, c, "c")}
		return nil, nil
	}}
	d, _ := newTestDispatcher(t, mustTable(t, r), eval)

	out := d.Dispatch(context.Background(), Event{Routine: "R", Params: []ir.Value{ir.Int(1)}})
	require.True(t, out.Invoked())
	assert.Equal(t, ir.Value(ir.Empty{}), out.Return.Value, "nil return becomes empty")
	assert.Equal(t, []ir.Value{ir.Int(1), ir.String("dflt-b"), ir.String("dflt-c")}, got)

	out = d.Dispatch(context.Background(), Event{Routine: "R", Params: []ir.Value{ir.Int(1), ir.Int(2), ir.Int(3)}})
	require.True(t, out.Invoked())
	assert.Equal(t, []ir.Value{ir.Int(1), ir.Int(2), ir.String("dflt-c")}, got)
}

func TestDispatch_UnknownRoutineDropped(t *testing.T) {
	d, rec := newTestDispatcher(t, mustTable(t), scriptedEvaluator{})

	out := d.Dispatch(context.Background(), Event{Routine: "Missing"})
	assert.True(t, out.Dropped())
	assert.Equal(t, ReasonUnknownRoutine, out.Reason)
	assert.True(t, IsUnknownRoutine(out.Err))
	assert.Equal(t, 0, d.Depth())

	require.Len(t, rec.Transitions, 2)
	assert.Equal(t, StateAdmitting, rec.Transitions[1].From)
	assert.Equal(t, StateIdle, rec.Transitions[1].To)
}

func TestDispatch_NestedSnapshotsPairLIFO(t *testing.T) {
	const levels = 5
	r := mustRoutine(t, ir.RoutineDecl{Name: "Nest", Params: params("n")})

	eval := scriptedEvaluator{"Nest": func(ctx context.Context, c *Call) (ir.Value, error) {
		n, _ := ir.AsInt(slotValue(t, c, "n"))
		assert.Equal(t, c.Depth, c.d.SnapshotDepth(), "snapshot depth equals nesting depth")
		c.Globals.ErrorLevel = ir.Text(ir.Int(n))
		c.Globals.Flags[FlagWinDelay] = n
		if n < levels {
			out := c.Dispatch(ctx, Event{Routine: "Nest", Params: []ir.Value{ir.Int(n + 1)}})
			require.True(t, out.Invoked())
			// The inner level's globals never leak out.
			assert.Equal(t, ir.Text(ir.Int(n)), c.Globals.ErrorLevel)
			assert.Equal(t, n, c.Globals.Flags[FlagWinDelay])
		}
		return ir.Int(n), nil
	}}
	d, rec := newTestDispatcher(t, mustTable(t, r), eval)
	d.Globals().ErrorLevel = "host"

	out := d.Dispatch(context.Background(), Event{Routine: "Nest", Params: []ir.Value{ir.Int(1)}})
	require.True(t, out.Invoked())

	assert.Equal(t, 0, d.SnapshotDepth())
	assert.Equal(t, 0, d.Depth())
	assert.Equal(t, levels, d.PeakDepth())
	assert.Equal(t, "host", d.Globals().ErrorLevel)
	assert.Equal(t, int64(0), d.Globals().Flags[FlagWinDelay])
	assert.Equal(t, 0, r.Active())
	assert.Equal(t, 0, d.LiveBackups())

	// Outcomes complete innermost first.
	require.Len(t, rec.Outcomes, levels)
	for i, o := range rec.Outcomes {
		assert.Equal(t, levels-1-i, o.Depth)
	}

	// Every level walks the full state machine in order.
	var stack []int
	for _, tr := range rec.Transitions {
		require.True(t, ValidTransition(tr.From, tr.To))
		switch tr.To {
		case StateAdmitting:
			stack = append(stack, tr.Level)
		case StateIdle:
			require.NotEmpty(t, stack)
			assert.Equal(t, stack[len(stack)-1], tr.Level, "levels finish in LIFO order")
			stack = stack[:len(stack)-1]
		}
	}
	assert.Empty(t, stack)
}

func TestDispatch_RecursionBacksUpAndRestoresSlots(t *testing.T) {
	r := mustRoutine(t, ir.RoutineDecl{Name: "Single", Params: params("p"), Locals: []string{"v"}, MaxInstances: 2})

	eval := scriptedEvaluator{"Single": func(ctx context.Context, c *Call) (ir.Value, error) {
		v, _ := c.Routine.Slot("v")
		p := slotValue(t, c, "p")
		if ir.Text(p) == "outer" {
			v.Set(ir.String("outer-local"))
			capBefore := v.Capacity()

			out := c.Dispatch(ctx, Event{Routine: "Single", Params: []ir.Value{ir.String("inner")}})
			require.True(t, out.Invoked())
			assert.True(t, out.BackedUp)
			assert.Equal(t, ir.Value(ir.String("inner-local-result")), out.Return.Value)

			// Round trip: outer slots unchanged.
			assert.Equal(t, ir.Value(ir.String("outer")), slotValue(t, c, "p"))
			assert.Equal(t, ir.Value(ir.String("outer-local")), v.Value())
			assert.Equal(t, capBefore, v.Capacity())
			return v.Value(), nil
		}

		assert.True(t, ir.IsEmpty(v.Value()), "inner instance starts fresh")
		assert.Equal(t, 1, c.d.LiveBackups())
		v.Set(ir.String("inner-local-result"))
		return v.Value(), nil
	}}
	d, _ := newTestDispatcher(t, mustTable(t, r), eval)

	out := d.Dispatch(context.Background(), Event{Routine: "Single", Params: []ir.Value{ir.String("outer")}})
	require.True(t, out.Invoked())
	assert.False(t, out.BackedUp)
	assert.Equal(t, ir.Value(ir.String("outer-local")), out.Return.Value)
	assert.Equal(t, 0, r.Active())
	assert.Equal(t, 0, d.LiveBackups())
}

func TestDispatch_MaxInstancesOneRefusesReentry(t *testing.T) {
	r := mustRoutine(t, ir.RoutineDecl{Name: "Once", Params: params("p"), Locals: []string{"v"}, MaxInstances: 1})

	var inner Outcome
	eval := scriptedEvaluator{"Once": func(ctx context.Context, c *Call) (ir.Value, error) {
		v, _ := c.Routine.Slot("v")
		v.Set(ir.String("outer-local"))

		inner = c.Dispatch(ctx, Event{Routine: "Once", Params: []ir.Value{ir.String("inner")}})

		assert.Equal(t, ir.Value(ir.String("outer")), slotValue(t, c, "p"))
		assert.Equal(t, ir.Value(ir.String("outer-local")), v.Value())
		assert.Equal(t, 0, c.d.LiveBackups(), "refused before any backup")
		return v.Value(), nil
	}}
	d, rec := newTestDispatcher(t, mustTable(t, r), eval)

	out := d.Dispatch(context.Background(), Event{Routine: "Once", Params: []ir.Value{ir.String("outer")}})
	require.True(t, out.Invoked())
	assert.Equal(t, ir.Value(ir.String("outer-local")), out.Return.Value)

	assert.True(t, inner.Dropped())
	assert.Equal(t, ReasonInstanceLimit, inner.Reason)
	assert.Equal(t, 1, inner.Depth)
	require.Len(t, rec.Outcomes, 2)

	// The refused level never counts toward depth.
	assert.Equal(t, 1, d.PeakDepth())
	assert.Equal(t, 0, d.Depth())
	assert.Equal(t, 0, r.Active())
}

func TestDispatch_RecurInstanceLimitIsSeparateGate(t *testing.T) {
	r := mustRoutine(t, ir.RoutineDecl{Name: "Recur", Params: params("n"), MaxInstances: 2})

	var third Outcome
	var backedUp []bool
	eval := scriptedEvaluator{"Recur": func(ctx context.Context, c *Call) (ir.Value, error) {
		n, _ := ir.AsInt(slotValue(t, c, "n"))
		switch n {
		case 1:
			out := c.Dispatch(ctx, Event{Routine: "Recur", Params: []ir.Value{ir.Int(2)}})
			require.True(t, out.Invoked())
			backedUp = append(backedUp, out.BackedUp)
		case 2:
			assert.Equal(t, 2, c.Routine.Active())
			assert.Equal(t, 1, c.d.LiveBackups(), "exactly one backup record")
			third = c.Dispatch(ctx, Event{Routine: "Recur", Params: []ir.Value{ir.Int(3)}})
			assert.Equal(t, 2, c.d.Depth(), "refused event leaves depth unchanged")
		}
		return ir.Int(n), nil
	}}
	d, _ := newTestDispatcher(t, mustTable(t, r), eval)

	out := d.Dispatch(context.Background(), Event{Routine: "Recur", Params: []ir.Value{ir.Int(1)}})
	require.True(t, out.Invoked())
	assert.Equal(t, []bool{true}, backedUp)

	assert.True(t, third.Dropped())
	assert.Equal(t, ReasonInstanceLimit, third.Reason)
	assert.True(t, IsInstanceLimit(third.Err))
	assert.False(t, IsAdmissionDenied(third.Err))
	assert.Equal(t, 2, third.Depth)
	assert.Equal(t, 0, d.Depth())
	assert.Equal(t, 0, r.Active())
}

func TestDispatch_DepthCeiling(t *testing.T) {
	r := mustRoutine(t, ir.RoutineDecl{Name: "Deep", Params: params("n")})
	var last Outcome
	eval := scriptedEvaluator{"Deep": func(ctx context.Context, c *Call) (ir.Value, error) {
		out := c.Dispatch(ctx, Event{Routine: "Deep"})
		if out.Dropped() {
			last = out
		}
		return nil, nil
	}}
	d, _ := newTestDispatcher(t, mustTable(t, r), eval, WithMaxDepth(3))

	out := d.Dispatch(context.Background(), Event{Routine: "Deep"})
	require.True(t, out.Invoked())
	assert.Equal(t, 3, d.PeakDepth())
	assert.Equal(t, ReasonDepthSaturated, last.Reason)
	assert.Equal(t, 3, last.Depth)
	assert.True(t, IsAdmissionDenied(last.Err))
	assert.Equal(t, 0, d.Depth())
}

func TestDispatch_CriticalRegionDropsAllButAlwaysSafe(t *testing.T) {
	worker := mustRoutine(t, ir.RoutineDecl{Name: "Worker", Body: body(ir.OpSet)})
	terminate := mustRoutine(t, ir.RoutineDecl{Name: "Terminate", Body: body(ir.OpExitApp)})
	outer := mustRoutine(t, ir.RoutineDecl{Name: "Outer"})

	var workerOut, termOut Outcome
	eval := scriptedEvaluator{
		"Outer": func(ctx context.Context, c *Call) (ir.Value, error) {
			c.SetInterruptible(false)
			workerOut = c.Dispatch(ctx, Event{Routine: "Worker"})
			termOut = c.Dispatch(ctx, Event{Routine: "Terminate"})
			return nil, nil
		},
		"Terminate": func(_ context.Context, c *Call) (ir.Value, error) {
			c.Request(ir.OpExitApp)
			return nil, nil
		},
	}
	d, _ := newTestDispatcher(t, mustTable(t, worker, terminate, outer), eval)

	out := d.Dispatch(context.Background(), Event{Routine: "Outer"})
	require.True(t, out.Invoked())

	assert.True(t, workerOut.Dropped())
	assert.Equal(t, ReasonNotInterruptible, workerOut.Reason)
	require.True(t, termOut.Invoked())
	assert.Equal(t, ir.OpExitApp, termOut.Return.Request)

	// The critical region ended with the routine that entered it.
	assert.True(t, d.Admission().Interruptible())
}

func TestDispatch_HostCriticalRegion(t *testing.T) {
	worker := mustRoutine(t, ir.RoutineDecl{Name: "Worker", Body: body(ir.OpSet)})
	d, rec := newTestDispatcher(t, mustTable(t, worker), scriptedEvaluator{})

	d.SetInterruptible(false)
	out := d.Dispatch(context.Background(), Event{Routine: "Worker"})
	assert.True(t, out.Dropped())
	assert.Equal(t, 0, d.Depth())
	require.Len(t, rec.Outcomes, 1)

	d.SetInterruptible(true)
	assert.True(t, d.Dispatch(context.Background(), Event{Routine: "Worker"}).Invoked())
}

func TestDispatch_BackupExhaustionRollsBack(t *testing.T) {
	r := mustRoutine(t, ir.RoutineDecl{Name: "Recur", Params: params("n"), Locals: []string{"x"}})
	alloc := &failingAllocator{}

	var inner Outcome
	var depthBefore, snapsBefore int
	eval := scriptedEvaluator{"Recur": func(ctx context.Context, c *Call) (ir.Value, error) {
		n, _ := ir.AsInt(slotValue(t, c, "n"))
		if n == 1 {
			x, _ := c.Routine.Slot("x")
			x.Set(ir.String("keep"))
			c.Globals.ErrorLevel = "outer"

			depthBefore, snapsBefore = c.d.Depth(), c.d.SnapshotDepth()
			inner = c.Dispatch(ctx, Event{Routine: "Recur", Params: []ir.Value{ir.Int(2)}})

			assert.Equal(t, depthBefore, c.d.Depth(), "no depth leak")
			assert.Equal(t, snapsBefore, c.d.SnapshotDepth(), "snapshot discarded")
			assert.Equal(t, 1, c.Routine.Active())
			assert.Equal(t, ir.Value(ir.String("keep")), x.Value())
			assert.Equal(t, ir.Value(ir.Int(1)), slotValue(t, c, "n"))
			assert.Equal(t, "outer", c.Globals.ErrorLevel)
		}
		return nil, nil
	}}
	d, rec := newTestDispatcher(t, mustTable(t, r), eval, WithAllocator(alloc))

	out := d.Dispatch(context.Background(), Event{Routine: "Recur", Params: []ir.Value{ir.Int(1)}})
	require.True(t, out.Invoked())

	assert.Equal(t, 1, depthBefore)
	assert.True(t, inner.Dropped())
	assert.Equal(t, ReasonBackupExhausted, inner.Reason)
	assert.True(t, IsBackupExhausted(inner.Err))
	assert.Equal(t, 1, alloc.calls)
	assert.Equal(t, 0, d.Depth())

	var aborted bool
	for _, tr := range rec.Transitions {
		if tr.Level == 2 && tr.From == StateContextSaved && tr.To == StateIdle {
			aborted = true
		}
	}
	assert.True(t, aborted, "level 2 aborts from ContextSaved")
}

func TestDispatch_BodyFailurePassesThroughAndUnwinds(t *testing.T) {
	r := mustRoutine(t, ir.RoutineDecl{Name: "Bad"})
	boom := errors.New("boom")
	eval := scriptedEvaluator{"Bad": func(_ context.Context, c *Call) (ir.Value, error) {
		c.Globals.ErrorLevel = "1"
		return ir.String("partial"), boom
	}}
	d, _ := newTestDispatcher(t, mustTable(t, r), eval)

	out := d.Dispatch(context.Background(), Event{Routine: "Bad"})
	require.True(t, out.Invoked())
	assert.ErrorIs(t, out.Return.Err, boom)
	assert.Equal(t, ir.Value(ir.String("partial")), out.Return.Value)
	assert.Equal(t, "", d.Globals().ErrorLevel)
	assert.Equal(t, 0, d.Depth())
}

func TestDispatch_PanicUnwindsThenPropagates(t *testing.T) {
	r := mustRoutine(t, ir.RoutineDecl{Name: "Panics", Locals: []string{"v"}})
	eval := scriptedEvaluator{"Panics": func(_ context.Context, c *Call) (ir.Value, error) {
		c.Globals.ErrorLevel = "dirty"
		panic("evaluator bug")
	}}
	d, rec := newTestDispatcher(t, mustTable(t, r), eval)

	assert.PanicsWithValue(t, "evaluator bug", func() {
		d.Dispatch(context.Background(), Event{Routine: "Panics"})
	})

	assert.Equal(t, 0, d.Depth())
	assert.Equal(t, 0, d.SnapshotDepth())
	assert.Equal(t, 0, r.Active())
	assert.Equal(t, "", d.Globals().ErrorLevel)
	assert.Empty(t, rec.Outcomes, "no outcome for a panicking dispatch")

	last := rec.Transitions[len(rec.Transitions)-1]
	assert.Equal(t, StateRestoring, last.From)
	assert.Equal(t, StateIdle, last.To)
}

func TestDispatch_CaseInsensitiveRoutineName(t *testing.T) {
	r := mustRoutine(t, ir.RoutineDecl{Name: "OnMessage"})
	d, _ := newTestDispatcher(t, mustTable(t, r), scriptedEvaluator{})

	out := d.Dispatch(context.Background(), Event{Routine: "onmessage"})
	require.True(t, out.Invoked())
	assert.Equal(t, "OnMessage", out.Routine)
}

func TestValidTransition(t *testing.T) {
	assert.True(t, ValidTransition(StateIdle, StateAdmitting))
	assert.True(t, ValidTransition(StateAdmitting, StateIdle))
	assert.True(t, ValidTransition(StateContextSaved, StateIdle))
	assert.False(t, ValidTransition(StateVarsBackedUp, StateIdle))
	assert.False(t, ValidTransition(StateInvoking, StateIdle))
	assert.False(t, ValidTransition(StateAdmitting, StateInvoking))
	assert.Equal(t, "vars_backed_up", StateVarsBackedUp.String())
	assert.Equal(t, "State(9)", State(9).String())
}
