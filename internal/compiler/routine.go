package compiler

import (
	"fmt"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/reentry/internal/ir"
)

// CompileScript compiles every routine under the top-level `routine` struct
// of a CUE value, in declaration order.
//
//	routine: Counter: {
//		params: ["a", {name: "b", default: 0}]
//		locals: ["sum"]
//		max_instances: 1
//		body: [
//			["set", "sum", "%a%"],
//			{op: "add", args: ["sum", "%b%"]},
//			["return", "%sum%"],
//		]
//	}
//
// A value without a `routine` field compiles to an empty table.
func CompileScript(v cue.Value) ([]ir.RoutineDecl, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	routinesVal := v.LookupPath(cue.ParsePath("routine"))
	if !routinesVal.Exists() {
		return nil, nil
	}

	iter, err := routinesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var decls []ir.RoutineDecl
	for iter.Next() {
		decl, err := CompileRoutine(iter.Value())
		if err != nil {
			return nil, err
		}
		decls = append(decls, *decl)
	}
	return decls, nil
}

// CompileRoutine parses one routine struct. The routine's name is the
// struct's label, e.g. the value at path routine.Counter.
func CompileRoutine(v cue.Value) (*ir.RoutineDecl, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	decl := &ir.RoutineDecl{}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		decl.Name = labelName(labels[len(labels)-1])
	}

	var err error
	if decl.Params, err = parseParams(v); err != nil {
		return nil, err
	}
	if decl.Locals, err = parseStringList(v, "locals"); err != nil {
		return nil, err
	}

	if mi := v.LookupPath(cue.ParsePath("max_instances")); mi.Exists() {
		n, err := mi.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		decl.MaxInstances = int(n)
	}

	if decl.Body, err = parseBody(v); err != nil {
		return nil, err
	}

	return decl, nil
}

// labelName returns a selector's label without CUE string quoting, so
// routine: "on-exit": {...} is named on-exit.
func labelName(sel cue.Selector) string {
	s := sel.String()
	if unq, err := strconv.Unquote(s); err == nil {
		return unq
	}
	return s
}

// parseParams accepts "name" or {name: "x", default: <scalar>} entries.
func parseParams(v cue.Value) ([]ir.ParamDecl, error) {
	paramsVal := v.LookupPath(cue.ParsePath("params"))
	if !paramsVal.Exists() {
		return nil, nil
	}

	iter, err := paramsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var params []ir.ParamDecl
	for iter.Next() {
		pv := iter.Value()

		if name, err := pv.String(); err == nil {
			params = append(params, ir.ParamDecl{Name: name})
			continue
		}

		nameVal := pv.LookupPath(cue.ParsePath("name"))
		if !nameVal.Exists() {
			return nil, &CompileError{
				Field:   "params",
				Message: "param must be a string or a struct with a name field",
				Pos:     pv.Pos(),
			}
		}
		name, err := nameVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}

		p := ir.ParamDecl{Name: name}
		if dv := pv.LookupPath(cue.ParsePath("default")); dv.Exists() {
			p.Default, err = scalar(dv)
			if err != nil {
				return nil, err
			}
		}
		params = append(params, p)
	}
	return params, nil
}

// parseBody accepts ["op", args...] lists or {op: "op", args: [...]} structs.
func parseBody(v cue.Value) ([]ir.Action, error) {
	bodyVal := v.LookupPath(cue.ParsePath("body"))
	if !bodyVal.Exists() {
		return nil, nil
	}

	iter, err := bodyVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var body []ir.Action
	for iter.Next() {
		av := iter.Value()

		if av.IncompleteKind() == cue.ListKind {
			parts, err := stringList(av)
			if err != nil {
				return nil, err
			}
			if len(parts) == 0 {
				return nil, &CompileError{Field: "body", Message: "empty action", Pos: av.Pos()}
			}
			body = append(body, ir.Action{Op: ir.Op(parts[0]), Args: parts[1:]})
			continue
		}

		opVal := av.LookupPath(cue.ParsePath("op"))
		if !opVal.Exists() {
			return nil, &CompileError{
				Field:   "body",
				Message: "action must be a list or a struct with an op field",
				Pos:     av.Pos(),
			}
		}
		op, err := opVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		args, err := parseStringList(av, "args")
		if err != nil {
			return nil, err
		}
		body = append(body, ir.Action{Op: ir.Op(op), Args: args})
	}
	return body, nil
}

func parseStringList(v cue.Value, field string) ([]string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}
	return stringList(fv)
}

// stringList reads a list of scalars as text. Numbers and bools are
// accepted so that ["add", "n", 1] works.
func stringList(v cue.Value) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		sv, err := scalar(iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, ir.Text(sv))
	}
	return out, nil
}

// scalar converts a concrete CUE string, int, bool or null to an ir.Value.
// Floats are rejected.
func scalar(v cue.Value) (ir.Value, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.String(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Int(n), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.NullKind:
		return ir.Empty{}, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   "value",
			Message: "float values are not supported, use int or string",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   "value",
			Message: fmt.Sprintf("unsupported value kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError is a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
