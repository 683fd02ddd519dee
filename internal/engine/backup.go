package engine

import (
	"fmt"

	"github.com/roach88/reentry/internal/ir"
	"github.com/roach88/reentry/internal/routine"
)

// SavedSlot is one captured (slot, value, capacity) tuple.
type SavedSlot struct {
	Slot     *routine.Slot
	Value    ir.Value
	Capacity int
}

// Allocator provides storage for variable backup records.
//
// Allocate must either return exactly n entries or fail without side
// effects; Free returns storage obtained from a successful Allocate.
type Allocator interface {
	Allocate(n int) ([]SavedSlot, error)
	Free(saved []SavedSlot)
}

// HeapAllocator allocates backup storage from the Go heap without limit.
type HeapAllocator struct{}

// Allocate returns a fresh slice of n entries.
func (HeapAllocator) Allocate(n int) ([]SavedSlot, error) {
	return make([]SavedSlot, n), nil
}

// Free is a no-op; the garbage collector reclaims the slice.
func (HeapAllocator) Free([]SavedSlot) {}

// BudgetAllocator caps the number of slots held by outstanding backup
// records. Deep recursion through routines with many variables fails with
// ErrStorageExhausted once the budget is spent.
type BudgetAllocator struct {
	budget int
	inUse  int
}

// NewBudgetAllocator creates an allocator holding at most budget slots.
func NewBudgetAllocator(budget int) *BudgetAllocator {
	return &BudgetAllocator{budget: budget}
}

// Allocate reserves n slots from the budget.
func (b *BudgetAllocator) Allocate(n int) ([]SavedSlot, error) {
	if b.inUse+n > b.budget {
		return nil, fmt.Errorf("%w: need %d slots, %d of %d in use", ErrStorageExhausted, n, b.inUse, b.budget)
	}
	b.inUse += n
	return make([]SavedSlot, n), nil
}

// Free returns slots to the budget.
func (b *BudgetAllocator) Free(saved []SavedSlot) {
	b.inUse -= len(saved)
	if b.inUse < 0 {
		b.inUse = 0
	}
}

// InUse returns the number of slots currently reserved.
func (b *BudgetAllocator) InUse() int {
	return b.inUse
}

// BackupRecord holds the prior contents of every slot of one routine,
// captured when a new instance of an already-active routine begins.
// A record is valid for exactly one restore.
type BackupRecord struct {
	routine  *routine.Routine
	saved    []SavedSlot
	consumed bool
}

// Routine returns the routine the record belongs to.
func (rec *BackupRecord) Routine() *routine.Routine {
	return rec.routine
}

// Saved returns the captured tuples in slot order.
func (rec *BackupRecord) Saved() []SavedSlot {
	return rec.saved
}

// Consumed reports whether the record has been restored.
func (rec *BackupRecord) Consumed() bool {
	return rec.consumed
}

// BackupKind distinguishes the two outcomes of BackupIfActive.
type BackupKind int

const (
	// BackupOwned: the routine had no active instance, so the invocation
	// uses the routine's slots directly.
	BackupOwned BackupKind = iota + 1

	// BackupRestored: the outer instance's slots were captured into a
	// record and will be written back when this invocation ends.
	BackupRestored
)

// String returns "owned" or "restored".
func (k BackupKind) String() string {
	switch k {
	case BackupOwned:
		return "owned"
	case BackupRestored:
		return "restored"
	default:
		return fmt.Sprintf("BackupKind(%d)", int(k))
	}
}

// Backup is the tagged result of BackupIfActive:
// {Owned(routine) | Restored(record)}.
type Backup struct {
	Kind    BackupKind
	Routine *routine.Routine
	Record  *BackupRecord // Non-nil only for BackupRestored
}

// VariableBackupStore isolates a routine's local variables across nested
// invocations of that same routine.
type VariableBackupStore struct {
	alloc Allocator
	live  int
}

// NewVariableBackupStore creates a store using alloc for record storage.
// A nil alloc means HeapAllocator.
func NewVariableBackupStore(alloc Allocator) *VariableBackupStore {
	if alloc == nil {
		alloc = HeapAllocator{}
	}
	return &VariableBackupStore{alloc: alloc}
}

// BackupIfActive captures r's slots when r already has an active instance.
//
// On capture every slot is reset to fresh, empty storage for the new
// instance. Storage is obtained before any slot is touched, so a failed
// allocation leaves every slot exactly as it was.
func (b *VariableBackupStore) BackupIfActive(r *routine.Routine) (Backup, error) {
	if r.Active() == 0 {
		return Backup{Kind: BackupOwned, Routine: r}, nil
	}

	slots := r.Slots()
	saved, err := b.alloc.Allocate(len(slots))
	if err != nil {
		return Backup{}, fmt.Errorf("backup %s: %w", r.Name(), err)
	}
	if len(saved) != len(slots) {
		b.alloc.Free(saved)
		return Backup{}, fmt.Errorf("backup %s: allocator returned %d entries, want %d: %w",
			r.Name(), len(saved), len(slots), ErrStorageExhausted)
	}

	for i, s := range slots {
		saved[i] = SavedSlot{Slot: s, Value: s.Value(), Capacity: s.Capacity()}
		s.Reset()
	}
	b.live++

	return Backup{
		Kind:    BackupRestored,
		Routine: r,
		Record:  &BackupRecord{routine: r, saved: saved},
	}, nil
}

// Restore ends an invocation's ownership of the routine's slots.
//
// For a Restored backup every captured tuple is written back and the record
// is discarded. For an Owned backup the invocation's locals are freed so the
// next invocation starts from empty storage.
//
// Must run after the invocation has finished reading its variables:
// anything still aliasing the inner instance's values is overwritten here.
func (b *VariableBackupStore) Restore(bk Backup) error {
	switch bk.Kind {
	case BackupOwned:
		for _, s := range bk.Routine.Slots() {
			s.Reset()
		}
		return nil

	case BackupRestored:
		rec := bk.Record
		if rec == nil {
			return fmt.Errorf("restore %s: missing backup record", bk.Routine.Name())
		}
		if rec.consumed {
			return fmt.Errorf("restore %s: %w", rec.routine.Name(), ErrRecordConsumed)
		}
		for _, saved := range rec.saved {
			saved.Slot.Load(saved.Value, saved.Capacity)
		}
		rec.consumed = true
		b.alloc.Free(rec.saved)
		rec.saved = nil
		b.live--
		return nil

	default:
		return fmt.Errorf("restore: invalid backup kind %d", int(bk.Kind))
	}
}

// Live returns the number of records taken but not yet restored.
func (b *VariableBackupStore) Live() int {
	return b.live
}
