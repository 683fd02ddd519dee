package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/reentry/internal/ir"
	"github.com/roach88/reentry/internal/routine"
)

func mustRoutine(t *testing.T, decl ir.RoutineDecl) *routine.Routine {
	t.Helper()
	r, err := routine.New(decl)
	require.NoError(t, err)
	return r
}

func params(names ...string) []ir.ParamDecl {
	out := make([]ir.ParamDecl, len(names))
	for i, n := range names {
		out[i] = ir.ParamDecl{Name: n}
	}
	return out
}

func body(ops ...ir.Op) []ir.Action {
	out := make([]ir.Action, len(ops))
	for i, op := range ops {
		out[i] = ir.Action{Op: op}
	}
	return out
}

func mustTable(t *testing.T, routines ...*routine.Routine) *routine.Table {
	t.Helper()
	tbl := routine.NewTable()
	for _, r := range routines {
		require.NoError(t, tbl.Register(r))
	}
	return tbl
}

// failingAllocator fails every allocation after the first ok calls.
type failingAllocator struct {
	ok    int
	calls int
	freed int
}

func (f *failingAllocator) Allocate(n int) ([]SavedSlot, error) {
	f.calls++
	if f.calls > f.ok {
		return nil, errors.New("injected allocation failure")
	}
	return make([]SavedSlot, n), nil
}

func (f *failingAllocator) Free(saved []SavedSlot) {
	f.freed += len(saved)
}

// scriptedEvaluator runs a per-routine Go function as the routine body.
type scriptedEvaluator map[string]func(ctx context.Context, c *Call) (ir.Value, error)

func (s scriptedEvaluator) Execute(ctx context.Context, c *Call) (ir.Value, error) {
	fn, ok := s[c.Routine.Name()]
	if !ok {
		return ir.Empty{}, nil
	}
	return fn(ctx, c)
}

func slotValue(t *testing.T, c *Call, name string) ir.Value {
	t.Helper()
	s, ok := c.Routine.Slot(name)
	require.True(t, ok, "slot %s", name)
	return s.Value()
}

func newTestDispatcher(t *testing.T, tbl RoutineTable, eval Evaluator, opts ...Option) (*Dispatcher, *Recorder) {
	t.Helper()
	rec := &Recorder{}
	opts = append([]Option{
		WithObserver(rec),
		WithIDGenerator(NewSequenceGenerator("ev")),
	}, opts...)
	return New(tbl, eval, nil, opts...), rec
}
