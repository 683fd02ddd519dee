package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reentry/internal/ir"
)

func act(op ir.Op, args ...string) ir.Action {
	return ir.Action{Op: op, Args: args}
}

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidate_CleanTable(t *testing.T) {
	decls := []ir.RoutineDecl{
		{
			Name:   "Counter",
			Params: []ir.ParamDecl{{Name: "a"}, {Name: "b"}},
			Locals: []string{"sum"},
			Body: []ir.Action{
				act(ir.OpSet, "sum", "%a%"),
				act(ir.OpAdd, "sum", "%B%"),
				act(ir.OpConcat, "sum", "100%%"),
				act(ir.OpSetFlag, "key_delay", "%a%"),
				act(ir.OpCritical, "on"),
				act(ir.OpDispatch, "quit", "%sum%"),
				act(ir.OpReturn, "%sum%"),
			},
		},
		{Name: "Quit", Body: []ir.Action{act(ir.OpExitApp)}},
	}
	assert.Empty(t, Validate(decls))
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	decls := []ir.RoutineDecl{
		{
			Name:         "Bad",
			Params:       []ir.ParamDecl{{Name: "x"}},
			Locals:       []string{"X", "1st"},
			MaxInstances: -1,
			Body: []ir.Action{
				act("jump"),
				act(ir.OpSet, "x"),
				act(ir.OpSet, "y", "1"),
				act(ir.OpReturn, "%nope%"),
				act(ir.OpDispatch, "Missing"),
				act(ir.OpCritical, "maybe"),
				act(ir.OpSetFlag, "bogus", "1"),
			},
		},
		{Name: "bad"},
		{Name: "has space"},
	}

	errs := Validate(decls)
	assert.Equal(t, []string{
		ErrDuplicateRoutine,
		ErrMaxInstancesInvalid,
		ErrDuplicateVariable,
		ErrInvalidVariableName,
		ErrUnknownAction,
		ErrActionArity,
		ErrUndefinedVariable,
		ErrUndefinedVariable,
		ErrUndefinedRoutine,
		ErrInvalidArgument,
		ErrInvalidArgument,
		ErrRoutineNameInvalid,
	}, codes(errs))

	require.NotEmpty(t, errs)
	assert.Equal(t, `[E104] bad.name: duplicate routine name "bad"`, errs[0].Error())
}

func TestValidationError_NoRoutine(t *testing.T) {
	e := ValidationError{Field: "script", Message: "empty", Code: "E100"}
	assert.Equal(t, "[E100] script: empty", e.Error())
}
