package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/reentry/internal/compiler"
	"github.com/roach88/reentry/internal/engine"
	"github.com/roach88/reentry/internal/ir"
	"github.com/roach88/reentry/internal/routine"
	"github.com/roach88/reentry/internal/script"
	"github.com/roach88/reentry/internal/store"
)

// Harness holds one scenario's engine and journal.
type Harness struct {
	store      *store.Store
	journal    *store.Journal
	dispatcher *engine.Dispatcher
	table      *routine.Table
	logger     *slog.Logger
}

// Run executes a scenario with a background context.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory journal, a fresh logical
// clock and event IDs "ev-1", "ev-2", ... so traces are reproducible.
// A returned error means the scenario could not run; mismatches are
// reported through Result.Errors.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	h, err := newHarness(ctx, scenario)
	if err != nil {
		return nil, err
	}
	defer h.store.Close()

	result := NewResult()
	for i, step := range scenario.Events {
		if step.Interruptible != nil {
			h.dispatcher.SetInterruptible(*step.Interruptible)
			continue
		}

		params, err := convertParams(step.Params)
		if err != nil {
			return nil, fmt.Errorf("events[%d]: %w", i, err)
		}
		out := h.dispatcher.Dispatch(ctx, engine.Event{Routine: step.Routine, Params: params})
		if step.Expect != nil {
			checkExpect(i, step, out, result)
		}
	}

	if err := h.journal.Err(); err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	recs, err := h.store.ReadAllDispatches(ctx)
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	result.Trace = traceFromRecords(recs)
	result.PeakDepth = h.dispatcher.PeakDepth()

	actx := &AssertionContext{
		Ctx:        ctx,
		Store:      h.store,
		Dispatcher: h.dispatcher,
		Table:      h.table,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(ctx context.Context, scenario *Scenario) (*Harness, error) {
	decls, err := compiler.CompileSource(scenario.Name+".cue", scenario.Script)
	if err != nil {
		return nil, fmt.Errorf("compile script: %w", err)
	}
	if verrs := compiler.Validate(decls); len(verrs) > 0 {
		var merr *multierror.Error
		for _, ve := range verrs {
			merr = multierror.Append(merr, ve)
		}
		return nil, fmt.Errorf("validate script: %w", merr)
	}
	tbl, err := routine.Load(decls)
	if err != nil {
		return nil, fmt.Errorf("load routines: %w", err)
	}
	hash, err := ir.ScriptHash(decls)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}

	// Scenario runs are quiet; failures surface through Result.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	journal := store.NewJournal(ctx, st, hash).WithLogger(logger)

	opts := []engine.Option{
		engine.WithObserver(journal),
		engine.WithLogger(logger),
		engine.WithIDGenerator(engine.NewSequenceGenerator("ev")),
	}
	if scenario.Settings.MaxDepth > 0 {
		opts = append(opts, engine.WithMaxDepth(scenario.Settings.MaxDepth))
	}
	if scenario.Settings.BackupBudget > 0 {
		opts = append(opts, engine.WithAllocator(engine.NewBudgetAllocator(scenario.Settings.BackupBudget)))
	}

	return &Harness{
		store:      st,
		journal:    journal,
		dispatcher: engine.New(tbl, script.New(script.WithLogger(logger)), nil, opts...),
		table:      tbl,
		logger:     logger,
	}, nil
}

func convertParams(raw []any) ([]ir.Value, error) {
	params := make([]ir.Value, len(raw))
	for i, p := range raw {
		v, err := ir.FromAny(p)
		if err != nil {
			return nil, fmt.Errorf("params[%d]: %w", i, err)
		}
		params[i] = v
	}
	return params, nil
}

func checkExpect(index int, step Step, out engine.Outcome, result *Result) {
	e := step.Expect
	prefix := fmt.Sprintf("events[%d] %s", index, step.Routine)

	if string(out.Kind) != e.Outcome {
		detail := ""
		if out.Dropped() {
			detail = fmt.Sprintf(" (reason %s)", out.Reason)
		} else if out.Return.Err != nil {
			detail = fmt.Sprintf(" (error %v)", out.Return.Err)
		}
		result.AddError(fmt.Sprintf("%s: expected outcome %s, got %s%s", prefix, e.Outcome, out.Kind, detail))
		return
	}

	if e.Reason != "" && string(out.Reason) != e.Reason {
		result.AddError(fmt.Sprintf("%s: expected reason %s, got %s", prefix, e.Reason, out.Reason))
	}

	if e.Return != nil {
		want, err := ir.FromAny(e.Return)
		if err != nil {
			result.AddError(fmt.Sprintf("%s: bad expected return: %v", prefix, err))
		} else if ir.Text(want) != ir.Text(out.Return.Value) {
			result.AddError(fmt.Sprintf("%s: expected return %q, got %q",
				prefix, ir.Text(want), ir.Text(out.Return.Value)))
		}
	}

	if e.Error != "" {
		switch {
		case out.Return.Err == nil:
			result.AddError(fmt.Sprintf("%s: expected error containing %q, got none", prefix, e.Error))
		case !strings.Contains(out.Return.Err.Error(), e.Error):
			result.AddError(fmt.Sprintf("%s: expected error containing %q, got %q", prefix, e.Error, out.Return.Err))
		}
	} else if out.Return.Err != nil {
		result.AddError(fmt.Sprintf("%s: unexpected error: %v", prefix, out.Return.Err))
	}
}
