package script

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reentry/internal/engine"
	"github.com/roach88/reentry/internal/ir"
	"github.com/roach88/reentry/internal/routine"
)

func act(op ir.Op, args ...string) ir.Action {
	return ir.Action{Op: op, Args: args}
}

func load(t *testing.T, decls ...ir.RoutineDecl) *routine.Table {
	t.Helper()
	tbl, err := routine.Load(decls)
	require.NoError(t, err)
	return tbl
}

func newDispatcher(t *testing.T, decls ...ir.RoutineDecl) *engine.Dispatcher {
	t.Helper()
	return engine.New(load(t, decls...), New(), nil, engine.WithIDGenerator(engine.NewSequenceGenerator("ev")))
}

func dispatch(d *engine.Dispatcher, name string, params ...ir.Value) engine.Outcome {
	return d.Dispatch(context.Background(), engine.Event{Routine: name, Params: params})
}

func TestExecute_CounterAddsParams(t *testing.T) {
	d := newDispatcher(t, ir.RoutineDecl{
		Name:   "Counter",
		Params: []ir.ParamDecl{{Name: "a"}, {Name: "b"}},
		Locals: []string{"sum"},
		Body: []ir.Action{
			act(ir.OpSet, "sum", "%a%"),
			act(ir.OpAdd, "sum", "%b%"),
			act(ir.OpReturn, "%sum%"),
		},
	})

	out := dispatch(d, "Counter", ir.Int(5), ir.Int(7))
	require.True(t, out.Invoked())
	require.NoError(t, out.Return.Err)
	assert.Equal(t, ir.Value(ir.Int(12)), out.Return.Value)
}

func TestExecute_ConcatAndInterpolation(t *testing.T) {
	d := newDispatcher(t, ir.RoutineDecl{
		Name:   "Greet",
		Params: []ir.ParamDecl{{Name: "who", Default: ir.String("world")}},
		Locals: []string{"msg"},
		Body: []ir.Action{
			act(ir.OpSet, "msg", "hello"),
			act(ir.OpConcat, "msg", ", %who%! 100%%"),
			act(ir.OpReturn, "%msg%"),
		},
	})

	out := dispatch(d, "Greet")
	assert.Equal(t, ir.Value(ir.String("hello, world! 100%")), out.Return.Value)

	out = dispatch(d, "Greet", ir.String("host"))
	assert.Equal(t, ir.Value(ir.String("hello, host! 100%")), out.Return.Value)
}

func TestExecute_EmptyBodyReturnsEmpty(t *testing.T) {
	d := newDispatcher(t, ir.RoutineDecl{Name: "Noop"})
	out := dispatch(d, "Noop")
	require.True(t, out.Invoked())
	assert.True(t, ir.IsEmpty(out.Return.Value))
}

func TestExecute_FailPassesThrough(t *testing.T) {
	d := newDispatcher(t, ir.RoutineDecl{
		Name:   "Bad",
		Locals: []string{"x"},
		Body: []ir.Action{
			act(ir.OpSet, "x", "1"),
			act(ir.OpFail, "x was %x%"),
			act(ir.OpReturn, "unreachable"),
		},
	})

	out := dispatch(d, "Bad")
	require.True(t, out.Invoked(), "body failure is still an invocation")
	require.Error(t, out.Return.Err)
	assert.True(t, IsFail(out.Return.Err))

	var serr *Error
	require.ErrorAs(t, out.Return.Err, &serr)
	assert.Equal(t, 1, serr.Step)
	assert.Equal(t, "Bad[1] fail: x was 1", serr.Error())
}

func TestExecute_RuntimeErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    []ir.Action
		wantMsg string
	}{
		{"unknown variable", []ir.Action{act(ir.OpSet, "nope", "1")}, `unknown variable "nope"`},
		{"unknown operand ref", []ir.Action{act(ir.OpReturn, "%nope%")}, `unknown variable "nope"`},
		{"unterminated ref", []ir.Action{act(ir.OpReturn, "a %v")}, "unterminated variable reference"},
		{"non-numeric add", []ir.Action{act(ir.OpSet, "v", "abc"), act(ir.OpAdd, "v", "1")}, "v is not a number"},
		{"arity", []ir.Action{act(ir.OpSet, "v")}, "set takes 2 argument(s), got 1"},
		{"critical arg", []ir.Action{act(ir.OpCritical, "maybe")}, "critical takes on or off"},
		{"bad flag", []ir.Action{act(ir.OpSetFlag, "bogus", "1")}, `unknown global flag "bogus"`},
		{"unknown op", []ir.Action{act("jump")}, `unknown action "jump"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDispatcher(t, ir.RoutineDecl{Name: "R", Locals: []string{"v"}, Body: tt.body})
			out := dispatch(d, "R")
			require.True(t, out.Invoked())
			require.Error(t, out.Return.Err)
			assert.Contains(t, out.Return.Err.Error(), tt.wantMsg)
			assert.False(t, IsFail(out.Return.Err))
		})
	}
}

func TestExecute_GlobalsAreRestoredAroundNesting(t *testing.T) {
	d := newDispatcher(t,
		ir.RoutineDecl{
			Name:   "Outer",
			Locals: []string{"seen"},
			Body: []ir.Action{
				act(ir.OpSetError, "outer"),
				act(ir.OpSetFlag, "key_delay", "10"),
				act(ir.OpDispatch, "Inner"),
				act(ir.OpReturn, "done"),
			},
		},
		ir.RoutineDecl{
			Name: "Inner",
			Body: []ir.Action{
				act(ir.OpSetError, "inner"),
				act(ir.OpSetFlag, "1", "-1"),
			},
		},
	)

	out := dispatch(d, "Outer")
	require.True(t, out.Invoked())
	require.NoError(t, out.Return.Err)
	assert.Equal(t, "", d.Globals().ErrorLevel)
	assert.Equal(t, int64(0), d.Globals().Flags[engine.FlagKeyDelay])
}

func TestExecute_RecursionKeepsLocalsPerLevel(t *testing.T) {
	// Recur(n): acc = n; if n < 3 dispatch Recur(n+1); return acc.
	// Without backup the inner level would overwrite the outer acc.
	d := newDispatcher(t, ir.RoutineDecl{
		Name:         "Recur",
		Params:       []ir.ParamDecl{{Name: "n"}, {Name: "next"}},
		Locals:       []string{"acc"},
		MaxInstances: 2,
		Body: []ir.Action{
			act(ir.OpSet, "acc", "level-%n%"),
			act(ir.OpDispatch, "Recur", "%next%", "3"),
			act(ir.OpReturn, "%acc%"),
		},
	})

	out := dispatch(d, "Recur", ir.Int(1), ir.Int(2))
	require.True(t, out.Invoked())
	require.NoError(t, out.Return.Err)
	assert.Equal(t, ir.Value(ir.String("level-1")), out.Return.Value)
	assert.Equal(t, 0, d.Depth())
	assert.Equal(t, 2, d.PeakDepth(), "third level refused by max_instances")
}

func TestExecute_CriticalDropsNestedDispatch(t *testing.T) {
	rec := &engine.Recorder{}
	tbl := load(t,
		ir.RoutineDecl{
			Name: "Guarded",
			Body: []ir.Action{
				act(ir.OpCritical, "on"),
				act(ir.OpDispatch, "Worker"),
				act(ir.OpDispatch, "Quit"),
				act(ir.OpCritical, "off"),
				act(ir.OpDispatch, "Worker"),
			},
		},
		ir.RoutineDecl{Name: "Worker", Body: []ir.Action{act(ir.OpSetError, "worker ran")}},
		ir.RoutineDecl{Name: "Quit", Body: []ir.Action{act(ir.OpExitApp)}},
	)
	d := engine.New(tbl, New(), nil, engine.WithObserver(rec))

	out := dispatch(d, "Guarded")
	require.True(t, out.Invoked())

	var kinds []string
	for _, o := range rec.Outcomes {
		kinds = append(kinds, o.Routine+":"+string(o.Kind)+":"+string(o.Reason))
	}
	assert.Equal(t, []string{
		"Worker:dropped:not_interruptible",
		"Quit:invoked:",
		"Worker:invoked:",
		"Guarded:invoked:",
	}, kinds)
}

func TestExecute_ExitAppStopsBody(t *testing.T) {
	d := newDispatcher(t, ir.RoutineDecl{
		Name: "Quit",
		Body: []ir.Action{act(ir.OpExitApp), act(ir.OpFail, "not reached")},
	})
	out := dispatch(d, "Quit")
	require.NoError(t, out.Return.Err)
	assert.Equal(t, ir.OpExitApp, out.Return.Request)
}
