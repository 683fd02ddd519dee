package ir

// Op names one body action of a routine.
type Op string

// Body actions understood by the action evaluator.
const (
	OpSet      Op = "set"      // set <var> <operand>
	OpAdd      Op = "add"      // add <var> <operand>
	OpConcat   Op = "concat"   // concat <var> <operand>
	OpReturn   Op = "return"   // return [<operand>]
	OpDispatch Op = "dispatch" // dispatch <routine> [<p1> [<p2>]]
	OpCritical Op = "critical" // critical on|off
	OpSetError Op = "seterror" // seterror <operand>
	OpSetFlag  Op = "setflag"  // setflag <index> <operand>
	OpFail     Op = "fail"     // fail <message>
	OpExitApp  Op = "exitapp"  // exitapp
	OpReload   Op = "reload"   // reload
)

// KnownOps lists every op in declaration order.
var KnownOps = []Op{
	OpSet, OpAdd, OpConcat, OpReturn, OpDispatch, OpCritical,
	OpSetError, OpSetFlag, OpFail, OpExitApp, OpReload,
}

// IsKnownOp reports whether op is a recognised body action.
func IsKnownOp(op Op) bool {
	for _, k := range KnownOps {
		if k == op {
			return true
		}
	}
	return false
}

// Action is a single body step of a routine.
type Action struct {
	Op   Op       `json:"op"`
	Args []string `json:"args,omitempty"`
}

// ParamDecl is a formal parameter with an optional default value.
type ParamDecl struct {
	Name    string `json:"name"`
	Default Value  `json:"-"`
}

// RoutineDecl is a compiled routine definition.
//
// Formal parameters come first in the routine's slot layout, followed by
// locals in declaration order.
type RoutineDecl struct {
	Name         string      `json:"name"`
	Params       []ParamDecl `json:"params"`
	Locals       []string    `json:"locals,omitempty"`
	MaxInstances int         `json:"max_instances"` // 0 = unlimited
	Body         []Action    `json:"body"`
}

// FirstOp returns the op of the first body action, or "" for an empty body.
func (d RoutineDecl) FirstOp() Op {
	if len(d.Body) == 0 {
		return ""
	}
	return d.Body[0].Op
}

// SlotNames returns formal parameter names followed by locals.
func (d RoutineDecl) SlotNames() []string {
	names := make([]string, 0, len(d.Params)+len(d.Locals))
	for _, p := range d.Params {
		names = append(names, p.Name)
	}
	return append(names, d.Locals...)
}

// canonicalMap builds the hashing form of a declaration.
func (d RoutineDecl) canonicalMap() map[string]any {
	params := make([]any, len(d.Params))
	for i, p := range d.Params {
		def := p.Default
		if def == nil {
			def = Empty{}
		}
		params[i] = map[string]any{"name": p.Name, "default": def}
	}
	body := make([]any, len(d.Body))
	for i, a := range d.Body {
		body[i] = map[string]any{"op": string(a.Op), "args": a.Args}
	}
	locals := d.Locals
	if locals == nil {
		locals = []string{}
	}
	return map[string]any{
		"name":          d.Name,
		"params":        params,
		"locals":        locals,
		"max_instances": d.MaxInstances,
		"body":          body,
	}
}

var arities = map[Op][2]int{
	OpSet:      {2, 2},
	OpAdd:      {2, 2},
	OpConcat:   {2, 2},
	OpReturn:   {0, 1},
	OpDispatch: {1, 3},
	OpCritical: {1, 1},
	OpSetError: {1, 1},
	OpSetFlag:  {2, 2},
	OpFail:     {0, 1},
	OpExitApp:  {0, 0},
	OpReload:   {0, 0},
}

// Arity returns the allowed argument count range of op.
// ok is false for an unknown op.
func Arity(op Op) (lo, hi int, ok bool) {
	a, ok := arities[op]
	return a[0], a[1], ok
}
