package routine

import (
	"fmt"
	"sort"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/reentry/internal/ir"
)

// foldName produces the lookup key for routine and variable names.
// Script identifiers are case-insensitive and compared after NFC normalization.
func foldName(name string) string {
	return cases.Fold().String(norm.NFC.String(name))
}

// Table is the routine table: the registry the dispatcher resolves host
// events against.
type Table struct {
	routines map[string]*Routine
	order    []string
}

// NewTable creates an empty routine table.
func NewTable() *Table {
	return &Table{routines: make(map[string]*Routine)}
}

// Load builds a table from compiled declarations, preserving their order.
func Load(decls []ir.RoutineDecl) (*Table, error) {
	t := NewTable()
	for _, d := range decls {
		r, err := New(d)
		if err != nil {
			return nil, err
		}
		if err := t.Register(r); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Register adds a routine. Names must be unique ignoring case.
func (t *Table) Register(r *Routine) error {
	key := foldName(r.Name())
	if _, exists := t.routines[key]; exists {
		return fmt.Errorf("duplicate routine: %s", r.Name())
	}
	t.routines[key] = r
	t.order = append(t.order, r.Name())
	return nil
}

// FindRoutine resolves a routine by name, ignoring case.
func (t *Table) FindRoutine(name string) (*Routine, bool) {
	r, ok := t.routines[foldName(name)]
	return r, ok
}

// Names returns routine names in registration order.
func (t *Table) Names() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// ActiveCounts returns the active-instance count of every routine that has
// at least one instance running, keyed by declared name.
func (t *Table) ActiveCounts() map[string]int {
	out := make(map[string]int)
	for _, r := range t.routines {
		if r.Active() > 0 {
			out[r.Name()] = r.Active()
		}
	}
	return out
}

// Len returns the number of registered routines.
func (t *Table) Len() int {
	return len(t.routines)
}

// SortedNames returns routine names sorted alphabetically.
func (t *Table) SortedNames() []string {
	names := t.Names()
	sort.Strings(names)
	return names
}
