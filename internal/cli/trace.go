package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/reentry/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Where string // filter expression, e.g. "routine = Counter AND outcome = dropped"
	Limit int
	Stats bool
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Where   string       `json:"where,omitempty"`
	Records []EventRow   `json:"records"`
	Stats   *store.Stats `json:"stats,omitempty"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Query the dispatch journal",
		Long: `Query the dispatch journal in arrival (seq) order.

--where takes a conjunction of comparisons over journal fields:

  field op value [AND field op value ...]

Operators are = (or ==), !=, <, <=, >, >=. Values are integers, true/false,
or text, quoted when they contain spaces. Routine names compare
case-insensitively.

Fields: ` + strings.Join(store.Schema.Columns("dispatches"), ", ") + `

Examples:
  reentry trace --db ./reentry.db
  reentry trace --db ./reentry.db --where "routine = Counter AND outcome = dropped"
  reentry trace --db ./reentry.db --where "depth >= 2" --limit 20 --stats`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&rootOpts.Database, "db", "", "path to SQLite journal (required)")
	cmd.Flags().StringVar(&opts.Where, "where", "", "filter expression")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum records to show (0 = all)")
	cmd.Flags().BoolVar(&opts.Stats, "stats", false, "include outcome counts")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if opts.Database == "" {
		return NewExitError(ExitCommandError, "--db is required (flag, REENTRY_DB or config)")
	}
	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid limit %d", opts.Limit))
	}
	// Opening would create an empty journal; a typo should fail instead.
	if _, err := os.Stat(opts.Database); errors.Is(err, os.ErrNotExist) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("journal not found: %s", opts.Database), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("journal not found: %s", opts.Database))
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "open journal", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing journal", "error", closeErr)
		}
	}()

	recs, err := st.QueryDispatchesWhere(ctx, opts.Where, opts.Limit)
	if err != nil {
		_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitCommandError, "query journal", err)
	}

	result := TraceResult{Where: opts.Where, Records: make([]EventRow, len(recs))}
	for i, rec := range recs {
		result.Records[i] = rowFromRecord(rec)
	}
	if opts.Stats {
		stats, err := st.Stats(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "journal stats", err)
		}
		result.Stats = &stats
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	outputTraceText(formatter, result)
	return nil
}

func outputTraceText(formatter *OutputFormatter, result TraceResult) {
	w := formatter.Writer
	if len(result.Records) == 0 {
		fmt.Fprintln(w, "No matching dispatches.")
	}
	for _, row := range result.Records {
		indent := strings.Repeat("  ", row.Depth)
		fmt.Fprintf(w, "%s%s\n", indent, formatter.describe(row))
	}

	if result.Stats == nil {
		return
	}
	st := result.Stats
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total: %d  Invoked: %d  Dropped: %d  Max depth: %d  Last seq: %d\n",
		st.Total, st.Invoked, st.Dropped, st.MaxDepth, st.LastSeq)

	reasons := make([]string, 0, len(st.ByReason))
	for r := range st.ByReason {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Fprintf(w, "  %s: %d\n", r, st.ByReason[r])
	}
}
