package routine

import "github.com/roach88/reentry/internal/ir"

// Slot is one named variable belonging to a routine's local scope.
//
// Capacity models the storage allocated for the variable's contents. It grows
// to fit assigned values and only shrinks when the slot is reset or restored.
type Slot struct {
	name     string
	value    ir.Value
	capacity int
}

// NewSlot creates an empty slot.
func NewSlot(name string) *Slot {
	return &Slot{name: name, value: ir.Empty{}}
}

// Name returns the variable name as declared.
func (s *Slot) Name() string {
	return s.name
}

// Value returns the current value. Never nil.
func (s *Slot) Value() ir.Value {
	if s.value == nil {
		return ir.Empty{}
	}
	return s.value
}

// Capacity returns the allocated capacity in bytes.
func (s *Slot) Capacity() int {
	return s.capacity
}

// Set assigns a value, growing capacity when needed.
func (s *Slot) Set(v ir.Value) {
	if v == nil {
		v = ir.Empty{}
	}
	s.value = v
	if n := ir.Size(v); n > s.capacity {
		s.capacity = n
	}
}

// Reset gives the slot fresh, empty storage.
func (s *Slot) Reset() {
	s.value = ir.Empty{}
	s.capacity = 0
}

// Load overwrites value and capacity verbatim. Used by variable restore.
func (s *Slot) Load(v ir.Value, capacity int) {
	if v == nil {
		v = ir.Empty{}
	}
	s.value = v
	s.capacity = capacity
}
