package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/reentry/internal/engine"
	"github.com/roach88/reentry/internal/ir"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Events string // path to the YAML event file

	// IDs overrides the event ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDs engine.IDGenerator
}

// EventFile is the YAML event stream fed to the pump.
//
//	events:
//	  - routine: Counter
//	    params: [5, 7]
//	  - routine: Tick
//	    repeat: 3
type EventFile struct {
	Events []EventSpec `yaml:"events"`
}

// EventSpec is one host event, posted Repeat times (default once).
type EventSpec struct {
	Routine string `yaml:"routine"`
	Params  []any  `yaml:"params,omitempty"`
	Repeat  int    `yaml:"repeat,omitempty"`
}

// RunResult is the JSON payload of the run command.
type RunResult struct {
	Posted   int        `json:"posted"`
	Invoked  int        `json:"invoked"`
	Dropped  int        `json:"dropped"`
	Journal  int        `json:"journaled"`
	LastSeq  int64      `json:"last_seq"`
	Outcomes []EventRow `json:"outcomes"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <script-dir>",
		Short: "Pump an event file through the dispatcher",
		Long: `Load a routine script and deliver a file of host events through the
event pump, journaling every outcome to SQLite.

Events are posted in file order and dispatched one at a time on a single
executor. Dropped events are not retried. Sequence numbers continue after
the journal's last recorded seq.

Example:
  reentry run ./script --events ./events.yaml --db ./reentry.db
  reentry run ./script --events ./events.yaml --db /tmp/test.db --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Events, "events", "", "path to YAML event file (required)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("events")

	return cmd
}

// LoadEventFile reads and checks an event file.
func LoadEventFile(path string) (*EventFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var ef EventFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&ef); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	for i, ev := range ef.Events {
		if ev.Routine == "" {
			return nil, fmt.Errorf("events[%d]: routine is required", i)
		}
		if len(ev.Params) > 2 {
			return nil, fmt.Errorf("events[%d]: at most 2 params, got %d", i, len(ev.Params))
		}
		if ev.Repeat < 0 {
			return nil, fmt.Errorf("events[%d]: repeat must not be negative", i)
		}
	}
	return &ef, nil
}

// hostEvents expands the file into dispatcher events.
func (ef *EventFile) hostEvents() ([]engine.Event, error) {
	var out []engine.Event
	for i, spec := range ef.Events {
		params := make([]ir.Value, len(spec.Params))
		for j, p := range spec.Params {
			v, err := ir.FromAny(p)
			if err != nil {
				return nil, fmt.Errorf("events[%d].params[%d]: %w", i, j, err)
			}
			params[j] = v
		}
		n := spec.Repeat
		if n == 0 {
			n = 1
		}
		for k := 0; k < n; k++ {
			out = append(out, engine.Event{Routine: spec.Routine, Params: slices.Clone(params)})
		}
	}
	return out, nil
}

func runEvents(opts *RunOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if opts.Database == "" {
		return NewExitError(ExitCommandError, "--db is required (flag, REENTRY_DB or config)")
	}

	ef, err := LoadEventFile(opts.Events)
	if err != nil {
		_ = formatter.Error(ErrCodeBadEvent, err.Error(), nil)
		return WrapExitError(ExitCommandError, "load events", err)
	}
	events, err := ef.hostEvents()
	if err != nil {
		_ = formatter.Error(ErrCodeBadEvent, err.Error(), nil)
		return WrapExitError(ExitCommandError, "load events", err)
	}

	sc, err := LoadScript(dir)
	if err != nil {
		return scriptError(formatter, err)
	}
	slog.Info("script loaded", "dir", dir, "routines", len(sc.Decls), "hash", sc.Hash)

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	var extra []engine.Option
	if opts.IDs != nil {
		extra = append(extra, engine.WithIDGenerator(opts.IDs))
	}
	s, err := openSession(ctx, opts.RootOptions, sc, opts.Database, extra...)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			slog.Error("error closing journal", "error", closeErr)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	pump := engine.NewPump(s.dispatcher)
	for _, ev := range events {
		pump.Post(ev)
	}
	pump.Stop()

	if err := pump.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "pump error", err)
	}
	if err := s.finish(); err != nil {
		_ = formatter.Error(ErrCodeJournal, "journal write failed", err.Error())
		return WrapExitError(ExitCommandError, "journal write failed", err)
	}

	result := RunResult{
		Posted:   len(events),
		Journal:  s.journal.Written(),
		LastSeq:  s.dispatcher.Clock().Current(),
		Outcomes: s.rows,
	}
	for _, row := range s.rows {
		if row.Outcome == string(ir.OutcomeDropped) {
			result.Dropped++
		} else {
			result.Invoked++
		}
	}
	if result.Outcomes == nil {
		result.Outcomes = []EventRow{}
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	for _, row := range result.Outcomes {
		formatter.VerboseLog("%s", formatter.describe(row))
	}
	fmt.Fprintln(formatter.Writer, formatter.OK(fmt.Sprintf("Posted %d event(s): %d invoked, %d dropped", result.Posted, result.Invoked, result.Dropped)))
	fmt.Fprintf(formatter.Writer, "  journaled %d outcome(s) to %s (last seq %d)\n", result.Journal, opts.Database, result.LastSeq)
	return nil
}
