package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"github.com/roach88/reentry/internal/engine"
	"github.com/roach88/reentry/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// Routine errors (E101-E109)
	ErrRoutineNameInvalid  = "E101" // empty or malformed routine name
	ErrMaxInstancesInvalid = "E102" // max_instances < 0
	ErrDuplicateVariable   = "E103" // params/locals collide (case-insensitive)
	ErrDuplicateRoutine    = "E104" // two routines fold to the same name
	ErrInvalidVariableName = "E105" // malformed param or local name

	// Body errors (E110-E119)
	ErrUnknownAction     = "E110" // op not recognised
	ErrActionArity       = "E111" // wrong argument count
	ErrUndefinedVariable = "E112" // %name% or target variable not declared
	ErrUndefinedRoutine  = "E113" // dispatch target not in the table
	ErrInvalidArgument   = "E114" // bad literal argument (critical, setflag)
)

// ValidationError is one rule violation in a compiled routine table.
type ValidationError struct {
	Routine string `json:"routine,omitempty"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Routine != "" {
		return fmt.Sprintf("[%s] %s.%s: %s", e.Code, e.Routine, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

var (
	namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_\-]*$`)
	refPattern  = regexp.MustCompile(`%([^%]*)%`)
)

// Validate checks a routine table. Returns all errors found (does not
// fail-fast), in routine then body order.
func Validate(decls []ir.RoutineDecl) []ValidationError {
	var errs []ValidationError

	fold := cases.Fold()
	routines := make(map[string]bool, len(decls))
	for _, d := range decls {
		key := fold.String(d.Name)
		if d.Name != "" && routines[key] {
			errs = append(errs, ValidationError{
				Routine: d.Name,
				Field:   "name",
				Message: fmt.Sprintf("duplicate routine name %q", d.Name),
				Code:    ErrDuplicateRoutine,
			})
		}
		routines[key] = true
	}

	for _, d := range decls {
		errs = append(errs, validateRoutine(d, routines)...)
	}
	return errs
}

func validateRoutine(d ir.RoutineDecl, routines map[string]bool) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{
			Routine: d.Name,
			Field:   field,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
		})
	}

	if !namePattern.MatchString(d.Name) {
		add("name", ErrRoutineNameInvalid, "invalid routine name %q", d.Name)
	}
	if d.MaxInstances < 0 {
		add("max_instances", ErrMaxInstancesInvalid, "must be >= 0, got %d", d.MaxInstances)
	}

	fold := cases.Fold()
	vars := make(map[string]bool)
	for i, name := range d.SlotNames() {
		field := fmt.Sprintf("params[%d]", i)
		if i >= len(d.Params) {
			field = fmt.Sprintf("locals[%d]", i-len(d.Params))
		}
		if !namePattern.MatchString(name) {
			add(field, ErrInvalidVariableName, "invalid variable name %q", name)
			continue
		}
		key := fold.String(name)
		if vars[key] {
			add(field, ErrDuplicateVariable, "duplicate variable %q", name)
		}
		vars[key] = true
	}

	hasVar := func(name string) bool { return vars[fold.String(name)] }

	for i, a := range d.Body {
		field := fmt.Sprintf("body[%d]", i)

		lo, hi, ok := ir.Arity(a.Op)
		if !ok {
			add(field, ErrUnknownAction, "unknown action %q", a.Op)
			continue
		}
		if n := len(a.Args); n < lo || n > hi {
			add(field, ErrActionArity, "%s takes %d to %d arguments, got %d", a.Op, lo, hi, n)
			continue
		}

		// Operand references
		operands := a.Args
		switch a.Op {
		case ir.OpSet, ir.OpAdd, ir.OpConcat:
			if !hasVar(a.Args[0]) {
				add(field, ErrUndefinedVariable, "undefined variable %q", a.Args[0])
			}
			operands = a.Args[1:]
		case ir.OpDispatch:
			if !routines[fold.String(a.Args[0])] {
				add(field, ErrUndefinedRoutine, "dispatch to undefined routine %q", a.Args[0])
			}
			operands = a.Args[1:]
		case ir.OpCritical:
			if a.Args[0] != "on" && a.Args[0] != "off" {
				add(field, ErrInvalidArgument, "critical takes on or off, got %q", a.Args[0])
			}
			operands = nil
		case ir.OpSetFlag:
			if _, err := engine.ParseFlag(a.Args[0]); err != nil {
				add(field, ErrInvalidArgument, "%v", err)
			}
			operands = a.Args[1:]
		}

		for _, op := range operands {
			for _, name := range operandRefs(op) {
				if !hasVar(name) {
					add(field, ErrUndefinedVariable, "undefined variable %q in %q", name, op)
				}
			}
		}
	}

	return errs
}

// operandRefs lists the variable names an operand reads. "%%" escapes are
// skipped.
func operandRefs(operand string) []string {
	var names []string
	for _, m := range refPattern.FindAllStringSubmatch(operand, -1) {
		if name := strings.TrimSpace(m[1]); name != "" {
			names = append(names, m[1])
		}
	}
	return names
}
