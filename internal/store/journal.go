package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/reentry/internal/engine"
	"github.com/roach88/reentry/internal/ir"
)

// Journal records every dispatch outcome into a Store.
//
// It implements engine.Observer. Observer callbacks cannot fail, so write
// errors are logged and accumulated; check Err after the run.
type Journal struct {
	store      *Store
	ctx        context.Context
	scriptHash string
	logger     *slog.Logger

	mu      sync.Mutex
	written int
	errs    *multierror.Error
}

var _ engine.Observer = (*Journal)(nil)

// NewJournal creates a journal writing to s. scriptHash tags every row
// with the routine table that produced it.
func NewJournal(ctx context.Context, s *Store, scriptHash string) *Journal {
	return &Journal{
		store:      s,
		ctx:        ctx,
		scriptHash: scriptHash,
		logger:     slog.Default(),
	}
}

// WithLogger sets the logger used for write failures.
func (j *Journal) WithLogger(l *slog.Logger) *Journal {
	j.logger = l
	return j
}

// OnTransition is a no-op; only outcomes are journaled.
func (j *Journal) OnTransition(engine.Transition) {}

// OnOutcome writes o.
func (j *Journal) OnOutcome(o engine.Outcome) {
	rec := RecordFromOutcome(o, j.scriptHash)
	err := j.store.WriteDispatch(j.ctx, rec)

	j.mu.Lock()
	defer j.mu.Unlock()
	if err != nil {
		j.logger.Error("journal write failed",
			"event_id", o.EventID,
			"routine", o.Routine,
			"error", err)
		j.errs = multierror.Append(j.errs, err)
		return
	}
	j.written++
}

// Written returns the number of records written.
func (j *Journal) Written() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.written
}

// Err returns every write failure so far, or nil.
func (j *Journal) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.errs.ErrorOrNil()
}

// RecordFromOutcome converts a dispatcher outcome into a journal row.
func RecordFromOutcome(o engine.Outcome, scriptHash string) ir.DispatchRecord {
	rec := ir.DispatchRecord{
		EventID:       o.EventID,
		Seq:           o.Seq,
		Routine:       o.Routine,
		Params:        o.Params,
		Depth:         o.Depth,
		Outcome:       o.Kind,
		BackedUp:      o.BackedUp,
		Return:        ir.Empty{},
		ScriptHash:    scriptHash,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}
	if rec.Params == nil {
		rec.Params = []ir.Value{}
	}
	if o.Dropped() {
		rec.Reason = string(o.Reason)
	} else {
		if o.Return.Value != nil {
			rec.Return = o.Return.Value
		}
		if o.Return.Err != nil {
			rec.Error = o.Return.Err.Error()
		}
		rec.Requested = string(o.Return.Request)
	}
	rec.ID = ir.MustDispatchID(rec.EventID, rec.Routine, rec.Params, rec.Depth, rec.Seq)
	return rec
}
