package engine

import "fmt"

// Flag indexes the fixed-size global state block.
type Flag int

// Global state block entries. These are the per-thread settings a script can
// change and expects back once a nested invocation has finished.
const (
	FlagTitleMatchMode Flag = iota
	FlagKeyDelay
	FlagWinDelay
	FlagBatchLines
	FlagAutoTrim
	FlagStringCaseSense
	FlagLastFoundWindow
	FlagTickCount

	// FlagCount is the size of the global state block.
	FlagCount
)

var flagNames = [FlagCount]string{
	"title_match_mode", "key_delay", "win_delay", "batch_lines",
	"auto_trim", "string_case_sense", "last_found_window", "tick_count",
}

// String returns the flag's snake_case name.
func (f Flag) String() string {
	if f < 0 || f >= FlagCount {
		return fmt.Sprintf("flag(%d)", int(f))
	}
	return flagNames[f]
}

// ParseFlag resolves a flag by name or numeric index.
func ParseFlag(s string) (Flag, error) {
	for i, name := range flagNames {
		if name == s {
			return Flag(i), nil
		}
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err == nil && n >= 0 && n < int(FlagCount) {
		return Flag(n), nil
	}
	return 0, fmt.Errorf("unknown global flag %q", s)
}

// Globals is the interpreter's mutable global execution state.
//
// It is a plain value threaded through the dispatcher rather than ambient
// process state, so every save has a visible matching restore.
type Globals struct {
	// ErrorLevel is the global error indicator. Its format belongs to the
	// evaluator; the dispatcher only saves and restores it verbatim.
	ErrorLevel string

	// Flags is the fixed-size global state block.
	Flags [FlagCount]int64
}

// Snapshot is a value copy of Globals taken before a nested invocation.
type Snapshot struct {
	errorLevel string
	flags      [FlagCount]int64
	level      int // Position on the SnapshotStack, 1-based; 0 if unstacked
}

// ErrorLevel returns the captured error indicator.
func (s Snapshot) ErrorLevel() string {
	return s.errorLevel
}

// Level returns the snapshot's position on its stack.
func (s Snapshot) Level() int {
	return s.level
}

// Save captures g. It changes nothing.
func Save(g *Globals) Snapshot {
	return Snapshot{errorLevel: g.ErrorLevel, flags: g.Flags}
}

// Restore overwrites g with the captured state.
func Restore(g *Globals, s Snapshot) {
	g.ErrorLevel = s.errorLevel
	g.Flags = s.flags
}

// SnapshotStack pairs Save and Restore in strict LIFO order.
type SnapshotStack struct {
	levels []int
}

// Push saves g and records the snapshot as the new top of stack.
func (st *SnapshotStack) Push(g *Globals) Snapshot {
	s := Save(g)
	s.level = len(st.levels) + 1
	st.levels = append(st.levels, s.level)
	return s
}

// Pop restores g from s. s must be the top of stack; otherwise nothing is
// restored and ErrSnapshotOrder is returned.
func (st *SnapshotStack) Pop(g *Globals, s Snapshot) error {
	if err := st.checkTop(s); err != nil {
		return err
	}
	Restore(g, s)
	st.levels = st.levels[:len(st.levels)-1]
	return nil
}

// Discard drops s from the top of stack without restoring it. Used when a
// dispatch aborts before anything observable has changed.
func (st *SnapshotStack) Discard(s Snapshot) error {
	if err := st.checkTop(s); err != nil {
		return err
	}
	st.levels = st.levels[:len(st.levels)-1]
	return nil
}

// Depth returns the number of outstanding snapshots.
func (st *SnapshotStack) Depth() int {
	return len(st.levels)
}

func (st *SnapshotStack) checkTop(s Snapshot) error {
	if len(st.levels) == 0 || st.levels[len(st.levels)-1] != s.level {
		return fmt.Errorf("%w: level %d, stack depth %d", ErrSnapshotOrder, s.level, len(st.levels))
	}
	return nil
}
