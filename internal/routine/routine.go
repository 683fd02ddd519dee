package routine

import (
	"fmt"

	"github.com/roach88/reentry/internal/ir"
)

// Routine is the descriptor of one callable unit of script.
//
// INVARIANTS:
//   - slots[0:len(decl.Params)] are the formal parameters, in order
//   - active is never negative
//
// Routine is not safe for concurrent use; the dispatcher's single-executor
// model is what keeps access serialized.
type Routine struct {
	decl   ir.RoutineDecl
	slots  []*Slot
	index  map[string]int
	active int
}

// New builds a routine from its compiled declaration.
// Every formal parameter and local gets its own Slot.
func New(decl ir.RoutineDecl) (*Routine, error) {
	if decl.Name == "" {
		return nil, fmt.Errorf("routine name is required")
	}
	if decl.MaxInstances < 0 {
		return nil, fmt.Errorf("routine %s: max_instances must be >= 0, got %d", decl.Name, decl.MaxInstances)
	}

	names := decl.SlotNames()
	r := &Routine{
		decl:  decl,
		slots: make([]*Slot, len(names)),
		index: make(map[string]int, len(names)),
	}
	for i, name := range names {
		key := foldName(name)
		if _, dup := r.index[key]; dup {
			return nil, fmt.Errorf("routine %s: duplicate variable %q", decl.Name, name)
		}
		r.index[key] = i
		r.slots[i] = NewSlot(name)
	}
	return r, nil
}

// Name returns the routine's declared name.
func (r *Routine) Name() string {
	return r.decl.Name
}

// Decl returns the compiled declaration.
func (r *Routine) Decl() ir.RoutineDecl {
	return r.decl
}

// Body returns the body entry point.
func (r *Routine) Body() []ir.Action {
	return r.decl.Body
}

// Params returns the formal parameter declarations.
func (r *Routine) Params() []ir.ParamDecl {
	return r.decl.Params
}

// MaxInstances returns the instance limit; 0 means unlimited.
func (r *Routine) MaxInstances() int {
	return r.decl.MaxInstances
}

// Active returns how many invocations of this routine are on the call stack.
func (r *Routine) Active() int {
	return r.active
}

// Enter increments the active-instance count.
func (r *Routine) Enter() {
	r.active++
}

// Leave decrements the active-instance count.
// Panics on underflow: that is always a dispatcher bug.
func (r *Routine) Leave() {
	if r.active == 0 {
		panic(fmt.Sprintf("routine %s: active-instance count underflow", r.decl.Name))
	}
	r.active--
}

// Slots returns the routine's variable slots, formals first.
func (r *Routine) Slots() []*Slot {
	return r.slots
}

// Slot looks up a variable by case-insensitive name.
func (r *Routine) Slot(name string) (*Slot, bool) {
	i, ok := r.index[foldName(name)]
	if !ok {
		return nil, false
	}
	return r.slots[i], true
}

// ApplyDefaults loads each formal's declared default into its slot.
// Formals without a default are left empty.
func (r *Routine) ApplyDefaults() {
	for i, p := range r.decl.Params {
		if p.Default != nil {
			r.slots[i].Set(p.Default)
		}
	}
}
