package engine

import "fmt"

// State is a dispatch state. Each nesting level walks the states
// independently.
type State int

const (
	StateIdle State = iota
	StateAdmitting
	StateContextSaved
	StateVarsBackedUp
	StateInvoking
	StateRestoring
)

var stateNames = [...]string{
	StateIdle:         "idle",
	StateAdmitting:    "admitting",
	StateContextSaved: "context_saved",
	StateVarsBackedUp: "vars_backed_up",
	StateInvoking:     "invoking",
	StateRestoring:    "restoring",
}

// String returns the state's snake_case name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

var transitions = map[State][]State{
	StateIdle:         {StateAdmitting},
	StateAdmitting:    {StateContextSaved, StateIdle},
	StateContextSaved: {StateVarsBackedUp, StateIdle},
	StateVarsBackedUp: {StateInvoking},
	StateInvoking:     {StateRestoring},
	StateRestoring:    {StateIdle},
}

// ValidTransition reports whether a level may move from one state to
// another. No state is skipped.
func ValidTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition is one state change of one nesting level.
type Transition struct {
	EventID string
	Routine string
	Level   int // 1 for the outermost dispatch
	From    State
	To      State
}
