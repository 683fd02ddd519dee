package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/reentry/internal/engine"
	"github.com/roach88/reentry/internal/ir"
)

// DispatchOptions holds flags for the dispatch command.
type DispatchOptions struct {
	*RootOptions

	// IDs overrides the event ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDs engine.IDGenerator
}

// DispatchResult is the JSON payload of the dispatch command.
type DispatchResult struct {
	Event  EventRow   `json:"event"`
	Nested []EventRow `json:"nested,omitempty"` // dispatches made by the routine body, in completion order
}

// NewDispatchCommand creates the dispatch command.
func NewDispatchCommand(rootOpts *RootOptions) *cobra.Command {
	return newDispatchCommand(&DispatchOptions{RootOptions: rootOpts})
}

func newDispatchCommand(opts *DispatchOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dispatch <script-dir> <routine> [p1] [p2]",
		Short: "Dispatch one host event",
		Long: `Load a routine script and dispatch a single host event to it.

Parameters that parse as integers are passed as integers, anything else as
text. Nested dispatches made by the routine body are reported too. With
--db the outcomes are appended to the journal.

Exit codes:
  0 - The routine was invoked
  1 - The event was dropped
  2 - Command error (bad script, unreadable journal)

Examples:
  reentry dispatch ./script Counter 5 7
  reentry dispatch ./script Ping --max-depth 3 --db ./reentry.db`,
		Args:          cobra.RangeArgs(2, 4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatch(opts, args[0], args[1], args[2:], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "append outcomes to this SQLite journal")

	return cmd
}

func runDispatch(opts *DispatchOptions, dir, name string, rawParams []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sc, err := LoadScript(dir)
	if err != nil {
		return scriptError(formatter, err)
	}

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

	params := make([]ir.Value, len(rawParams))
	for i, p := range rawParams {
		params[i] = parseParam(p)
	}

	out := s.dispatcher.Dispatch(ctx, engine.Event{Routine: name, Params: params})
	if err := s.finish(); err != nil {
		return WrapExitError(ExitCommandError, "journal write failed", err)
	}

	// The outermost outcome completes last.
	result := DispatchResult{
		Event:  s.rows[len(s.rows)-1],
		Nested: s.rows[:len(s.rows)-1],
	}

	if formatter.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		for _, row := range result.Nested {
			fmt.Fprintf(formatter.Writer, "  %s\n", formatter.describe(row))
		}
		fmt.Fprintln(formatter.Writer, formatter.describe(result.Event))
	}

	if out.Dropped() {
		return NewExitError(ExitFailure, fmt.Sprintf("event dropped: %s", out.Reason))
	}
	return nil
}

// scriptError reports a LoadScript failure as a command error.
func scriptError(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
		return WrapExitError(ExitCommandError, "load script", err)
	}
	errs := ValidationErrors(err)
	_ = formatter.Error(errs[0].Code, fmt.Sprintf("script has %d error(s)", len(errs)), errs)
	return WrapExitError(ExitCommandError, "invalid script", err)
}
