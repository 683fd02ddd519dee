package cli

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/fatih/color"

	"github.com/roach88/reentry/internal/engine"
	"github.com/roach88/reentry/internal/ir"
	"github.com/roach88/reentry/internal/routine"
	"github.com/roach88/reentry/internal/script"
	"github.com/roach88/reentry/internal/store"
)

// EventRow is one dispatch outcome as the CLI prints it.
type EventRow struct {
	Seq       int64  `json:"seq"`
	EventID   string `json:"event_id"`
	Routine   string `json:"routine"`
	Params    []any  `json:"params"`
	Depth     int    `json:"depth"`
	Outcome   string `json:"outcome"`
	Return    any    `json:"return,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
	Requested string `json:"requested,omitempty"`
}

func rowFromRecord(rec ir.DispatchRecord) EventRow {
	params := make([]any, len(rec.Params))
	for i, p := range rec.Params {
		params[i] = ir.ToAny(p)
	}
	return EventRow{
		Seq:       rec.Seq,
		EventID:   rec.EventID,
		Routine:   rec.Routine,
		Params:    params,
		Depth:     rec.Depth,
		Outcome:   string(rec.Outcome),
		Return:    ir.ToAny(rec.Return),
		Reason:    rec.Reason,
		Error:     rec.Error,
		Requested: rec.Requested,
	}
}

// describe renders a row as one line of text output.
func (f *OutputFormatter) describe(row EventRow) string {
	head := fmt.Sprintf("%s %s (seq %d, depth %d)", row.EventID, row.Routine, row.Seq, row.Depth)
	if row.Outcome == string(ir.OutcomeDropped) {
		return f.Fail(head) + " dropped: " + row.Reason
	}
	line := f.OK(head) + " invoked"
	if row.Return != nil {
		line += fmt.Sprintf(" return=%v", row.Return)
	}
	if row.Error != "" {
		line += " " + f.paint("error="+strconv.Quote(row.Error), color.FgYellow)
	}
	if row.Requested != "" {
		line += " requested=" + row.Requested
	}
	return line
}

// session is a loaded script wired to a dispatcher, with an optional
// journal when a database path is given.
type session struct {
	script     *LoadResult
	table      *routine.Table
	dispatcher *engine.Dispatcher
	store      *store.Store
	journal    *store.Journal
	rows       []EventRow
}

// openSession builds the dispatcher for script. With a non-empty db the
// journal is opened, the script is registered, and the logical clock
// resumes after the journal's last seq so seq stays monotonic across runs.
func openSession(ctx context.Context, opts *RootOptions, sc *LoadResult, db string, extra ...engine.Option) (*session, error) {
	tbl, err := sc.Table()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load routines", err)
	}
	logger := slog.Default()
	s := &session{script: sc, table: tbl}

	collect := engine.ObserverFuncs{Outcome: func(o engine.Outcome) {
		s.rows = append(s.rows, rowFromRecord(store.RecordFromOutcome(o, sc.Hash)))
	}}
	observers := engine.MultiObserver{collect}

	engineOpts := append([]engine.Option{engine.WithLogger(logger)}, opts.engineOptions()...)

	if db != "" {
		st, err := store.Open(db)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "open journal", err)
		}
		s.store = st

		last, err := st.GetLastSeq(ctx)
		if err != nil {
			_ = st.Close()
			return nil, WrapExitError(ExitCommandError, "read journal", err)
		}
		names := make([]string, len(sc.Decls))
		for i, d := range sc.Decls {
			names[i] = d.Name
		}
		sort.Strings(names)
		if _, err := st.WriteScript(ctx, sc.Hash, names, last); err != nil {
			_ = st.Close()
			return nil, WrapExitError(ExitCommandError, "register script", err)
		}

		s.journal = store.NewJournal(ctx, st, sc.Hash).WithLogger(logger)
		observers = append(observers, s.journal)
		engineOpts = append(engineOpts, engine.WithClock(engine.NewClockAt(last)))
		logger.Debug("journal open", "path", db, "last_seq", last, "script_hash", sc.Hash)
	}

	engineOpts = append(engineOpts, engine.WithObserver(observers))
	engineOpts = append(engineOpts, extra...)

	s.dispatcher = engine.New(tbl, script.New(script.WithLogger(logger)), nil, engineOpts...)
	return s, nil
}

// finish reports journal write failures collected during the session.
func (s *session) finish() error {
	if s.journal == nil {
		return nil
	}
	return s.journal.Err()
}

// Close releases the journal.
func (s *session) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

// parseParam reads a command-line parameter: integers become Int, anything
// else is passed through as String.
func parseParam(s string) ir.Value {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ir.Int(n)
	}
	return ir.String(s)
}
