package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/reentry/internal/ir"
	"github.com/roach88/reentry/internal/routine"
)

// RoutineTable is the external routine table the dispatcher reads from.
// *routine.Table implements it.
type RoutineTable interface {
	FindRoutine(name string) (*routine.Routine, bool)
}

// IDGenerator generates unique host event IDs.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// Event is one host event: a target routine and up to two scalar parameters.
//
// ID and Seq are stamped by the dispatcher when left zero.
type Event struct {
	ID      string
	Seq     int64
	Routine string
	Params  []ir.Value
}

// Outcome kinds, shared with the journal.
const (
	OutcomeInvoked = ir.OutcomeInvoked
	OutcomeDropped = ir.OutcomeDropped
)

// Outcome is the result of one Dispatch: Invoked(ReturnValue) or Dropped.
//
// The host contract is Kind and Return only. Reason and Err describe a
// drop for logs, observers and the journal.
type Outcome struct {
	Kind   ir.Outcome
	Return ReturnValue // Valid when Kind is OutcomeInvoked
	Reason Reason      // Valid when Kind is OutcomeDropped
	Err    *RuntimeError

	EventID  string
	Seq      int64
	Routine  string
	Params   []ir.Value
	Depth    int  // Admission depth when the event arrived
	BackedUp bool // A variable backup record was taken
}

// Invoked reports whether the routine ran.
func (o Outcome) Invoked() bool {
	return o.Kind == OutcomeInvoked
}

// Dropped reports whether the event was dropped.
func (o Outcome) Dropped() bool {
	return o.Kind == OutcomeDropped
}

// Dispatcher is the reentrant dispatcher.
//
// It owns the admission counters, the snapshot stack and the variable
// backup store, and borrows the routine table, the evaluator and the
// global execution state.
//
// Thread-safety model: none. All calls to Dispatch, including nested ones
// made from inside a routine body, happen on the single executor
// goroutine. Hosts delivering events from other goroutines use a Pump.
type Dispatcher struct {
	table     RoutineTable
	eval      Evaluator
	globals   *Globals
	admission *AdmissionController
	snapshots SnapshotStack
	backups   *VariableBackupStore
	observer  Observer
	logger    *slog.Logger
	clock     *Clock
	ids       IDGenerator
	peak      int

	// Applied by options before the collaborators above are built.
	maxDepth   int
	alwaysSafe []ir.Op
	alloc      Allocator
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMaxDepth sets the nesting ceiling.
//
// Default: 10 (DefaultMaxDepth)
func WithMaxDepth(n int) Option {
	return func(d *Dispatcher) {
		d.maxDepth = n
	}
}

// WithAllocator sets the storage source for variable backup records.
//
// Default: HeapAllocator
func WithAllocator(a Allocator) Option {
	return func(d *Dispatcher) {
		d.alloc = a
	}
}

// WithObserver registers a synchronous observer.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		d.observer = o
	}
}

// WithLogger sets the structured logger.
//
// Default: slog.Default()
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// WithClock sets the logical clock used to stamp event seq numbers.
// Used to resume numbering after a journal.
func WithClock(c *Clock) Option {
	return func(d *Dispatcher) {
		d.clock = c
	}
}

// WithIDGenerator sets the event ID source.
//
// Default: UUIDv7Generator
func WithIDGenerator(g IDGenerator) Option {
	return func(d *Dispatcher) {
		d.ids = g
	}
}

// WithAlwaysSafe replaces the set of body actions admitted under
// saturation.
//
// Default: DefaultAlwaysSafe (exitapp, reload)
func WithAlwaysSafe(ops ...ir.Op) Option {
	return func(d *Dispatcher) {
		d.alwaysSafe = ops
	}
}

// New creates a Dispatcher over the given routine table and evaluator.
// A nil globals gets a fresh zero Globals.
func New(table RoutineTable, eval Evaluator, globals *Globals, opts ...Option) *Dispatcher {
	if globals == nil {
		globals = &Globals{}
	}
	d := &Dispatcher{
		table:    table,
		eval:     eval,
		globals:  globals,
		observer: NopObserver{},
		logger:   slog.Default(),
		clock:    NewClock(),
		ids:      UUIDv7Generator{},
		maxDepth: DefaultMaxDepth,
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.observer == nil {
		d.observer = NopObserver{}
	}
	d.admission = NewAdmissionController(d.maxDepth, d.alwaysSafe...)
	d.backups = NewVariableBackupStore(d.alloc)
	return d
}

// Dispatch delivers one host event.
//
// The event either runs to completion (Invoked) or is dropped without any
// lasting state change (Dropped). Nothing is queued or retried.
//
// A panic from the evaluator propagates to the caller after this level has
// been fully unwound.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) Outcome {
	ev = d.stamp(ev)
	depth := d.admission.Depth()
	level := depth + 1

	d.transition(ev, level, StateIdle, StateAdmitting)

	r, ok := d.table.FindRoutine(ev.Routine)
	if !ok {
		return d.drop(ev, level, depth, StateAdmitting, ReasonUnknownRoutine, nil)
	}

	if dec := d.admission.Admit(r); !dec.Allow {
		return d.drop(ev, level, depth, StateAdmitting, dec.Reason, nil)
	}
	if dec := d.admission.CheckInstances(r); !dec.Allow {
		d.admission.Release()
		return d.drop(ev, level, depth, StateAdmitting, dec.Reason, nil)
	}

	snap := d.snapshots.Push(d.globals)
	d.transition(ev, level, StateAdmitting, StateContextSaved)

	bk, err := d.backups.BackupIfActive(r)
	if err != nil {
		if derr := d.snapshots.Discard(snap); derr != nil {
			d.logger.Error("discard context snapshot", "event_id", ev.ID, "error", derr)
		}
		d.admission.Release()
		return d.drop(ev, level, depth, StateContextSaved, ReasonBackupExhausted, err)
	}
	d.transition(ev, level, StateContextSaved, StateVarsBackedUp)

	ret := d.invoke(ctx, ev, level, r, bk, snap)

	out := Outcome{
		Kind:     OutcomeInvoked,
		Return:   ret,
		EventID:  ev.ID,
		Seq:      ev.Seq,
		Routine:  r.Name(),
		Params:   ev.Params,
		Depth:    depth,
		BackedUp: bk.Kind == BackupRestored,
	}
	d.logger.Debug("event dispatched",
		"event_id", ev.ID,
		"routine", r.Name(),
		"depth", level,
		"backed_up", out.BackedUp,
	)
	d.observer.OnOutcome(out)
	return out
}

// invoke runs Invoking and Restoring. Restoring is deferred so that it runs
// on every exit path, including an evaluator panic.
func (d *Dispatcher) invoke(ctx context.Context, ev Event, level int, r *routine.Routine, bk Backup, snap Snapshot) ReturnValue {
	interruptible := d.admission.Interruptible()

	r.Enter()
	if level > d.peak {
		d.peak = level
	}
	d.transition(ev, level, StateVarsBackedUp, StateInvoking)

	defer func() {
		r.Leave()
		d.transition(ev, level, StateInvoking, StateRestoring)

		if err := d.backups.Restore(bk); err != nil {
			d.logger.Error("restore routine variables", "event_id", ev.ID, "routine", r.Name(), "error", err)
		}
		d.admission.SetInterruptible(interruptible)
		if err := d.snapshots.Pop(d.globals, snap); err != nil {
			d.logger.Error("restore context snapshot", "event_id", ev.ID, "error", err)
		}
		d.admission.Release()

		d.transition(ev, level, StateRestoring, StateIdle)
	}()

	call := &Call{
		Event:   ev,
		Routine: r,
		Globals: d.globals,
		Depth:   level,
		d:       d,
	}
	return BindAndCall(ctx, call, d.eval)
}

func (d *Dispatcher) drop(ev Event, level, depth int, from State, reason Reason, cause error) Outcome {
	rerr := NewDropError(reason, ev, depth)
	if cause != nil {
		rerr.Err = cause
	}

	d.logger.Debug("event dropped",
		"event_id", ev.ID,
		"routine", ev.Routine,
		"reason", string(reason),
		"depth", depth,
	)
	d.transition(ev, level, from, StateIdle)

	out := Outcome{
		Kind:    OutcomeDropped,
		Reason:  reason,
		Err:     rerr,
		EventID: ev.ID,
		Seq:     ev.Seq,
		Routine: ev.Routine,
		Params:  ev.Params,
		Depth:   depth,
	}
	d.observer.OnOutcome(out)
	return out
}

func (d *Dispatcher) stamp(ev Event) Event {
	if ev.Seq == 0 {
		ev.Seq = d.clock.Next()
	}
	if ev.ID == "" {
		ev.ID = d.ids.Generate()
	}
	return ev
}

func (d *Dispatcher) transition(ev Event, level int, from, to State) {
	if !ValidTransition(from, to) {
		panic(fmt.Sprintf("invalid dispatch transition %s -> %s", from, to))
	}
	d.observer.OnTransition(Transition{
		EventID: ev.ID,
		Routine: ev.Routine,
		Level:   level,
		From:    from,
		To:      to,
	})
}

// Globals returns the live global execution state.
func (d *Dispatcher) Globals() *Globals {
	return d.globals
}

// Admission returns the admission controller.
func (d *Dispatcher) Admission() *AdmissionController {
	return d.admission
}

// SetInterruptible enters (false) or leaves (true) a critical region from
// the host side, between dispatches.
func (d *Dispatcher) SetInterruptible(v bool) {
	d.admission.SetInterruptible(v)
}

// Depth returns the current nesting depth.
func (d *Dispatcher) Depth() int {
	return d.admission.Depth()
}

// PeakDepth returns the deepest nesting level that reached Invoking.
func (d *Dispatcher) PeakDepth() int {
	return d.peak
}

// SnapshotDepth returns the number of outstanding context snapshots.
func (d *Dispatcher) SnapshotDepth() int {
	return d.snapshots.Depth()
}

// LiveBackups returns the number of variable backup records not yet
// restored.
func (d *Dispatcher) LiveBackups() int {
	return d.backups.Live()
}

// Clock returns the logical clock.
func (d *Dispatcher) Clock() *Clock {
	return d.clock
}
