// Package testutil builds dispatchers from inline scripts for tests.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/reentry/internal/compiler"
	"github.com/roach88/reentry/internal/engine"
	"github.com/roach88/reentry/internal/ir"
	"github.com/roach88/reentry/internal/routine"
	"github.com/roach88/reentry/internal/script"
)

// Decls compiles and validates an inline CUE script.
func Decls(t testing.TB, src string) []ir.RoutineDecl {
	t.Helper()
	decls, err := compiler.CompileSource(t.Name()+".cue", src)
	require.NoError(t, err)
	require.Empty(t, compiler.Validate(decls))
	return decls
}

// Table compiles src into a routine table.
func Table(t testing.TB, src string) *routine.Table {
	t.Helper()
	tbl, err := routine.Load(Decls(t, src))
	require.NoError(t, err)
	return tbl
}

// Dispatcher wires src to the action evaluator with deterministic event
// IDs ("ev-1", "ev-2", ...). opts are applied after the defaults.
func Dispatcher(t testing.TB, src string, opts ...engine.Option) *engine.Dispatcher {
	t.Helper()
	base := []engine.Option{engine.WithIDGenerator(engine.NewSequenceGenerator("ev"))}
	return engine.New(Table(t, src), script.New(), nil, append(base, opts...)...)
}
