package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/reentry/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Golden string // directory of {name}.golden trace files
	Update bool   // regenerate golden files
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance scenarios",
		Long: `Run YAML conformance scenarios.

Each scenario carries its own routine script, engine settings, an event
list with per-event expectations, and assertions over the journaled trace.
With --golden, each trace is also compared against {name}.golden in that
directory; --update rewrites those files instead.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  reentry test ./scenarios
  reentry test ./scenarios --golden ./golden
  reentry test ./scenarios --golden ./golden --update
  reentry test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Golden, "golden", "", "compare traces against golden files in this directory")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}
	if opts.Update && opts.Golden == "" {
		return NewExitError(ExitCommandError, "--update requires --golden")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	suite, err := harness.RunSuite(ctx, dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "run scenarios", err)
	}

	if opts.Golden != "" {
		for i := range suite.Results {
			checkGolden(opts, &suite.Results[i])
		}
		recount(suite)
	}

	if opts.Format == "json" {
		if err := outputTestJSON(cmd, suite); err != nil {
			return err
		}
	} else {
		outputTestText(formatter, suite)
	}

	if suite.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", suite.Failed, suite.TotalScenarios))
	}
	return nil
}

// checkGolden compares or rewrites one scenario's golden trace.
func checkGolden(opts *TestOptions, o *harness.ScenarioOutcome) {
	if o.Result == nil {
		return
	}
	got, err := harness.MarshalTrace(o.Name, o.Result)
	if err != nil {
		o.Pass = false
		o.Errors = append(o.Errors, fmt.Sprintf("marshal trace: %v", err))
		return
	}

	path := filepath.Join(opts.Golden, o.Name+".golden")
	if opts.Update {
		if err := os.MkdirAll(opts.Golden, 0o755); err == nil {
			err = os.WriteFile(path, got, 0o644)
		}
		if err != nil {
			o.Pass = false
			o.Errors = append(o.Errors, fmt.Sprintf("update golden: %v", err))
		}
		return
	}

	want, err := os.ReadFile(path)
	if err != nil {
		o.Pass = false
		o.Errors = append(o.Errors, fmt.Sprintf("read golden: %v", err))
		return
	}
	if !bytes.Equal(bytes.TrimSpace(want), bytes.TrimSpace(got)) {
		o.Pass = false
		o.Errors = append(o.Errors, fmt.Sprintf("trace differs from %s", path))
	}
}

func recount(suite *harness.SuiteResult) {
	suite.Passed, suite.Failed = 0, 0
	for _, o := range suite.Results {
		if o.Pass {
			suite.Passed++
		} else {
			suite.Failed++
		}
	}
}

func outputTestJSON(cmd *cobra.Command, suite *harness.SuiteResult) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	status := "ok"
	if suite.Failed > 0 {
		status = "error"
	}
	return encoder.Encode(CLIResponse{Status: status, Data: suite})
}

func outputTestText(formatter *OutputFormatter, suite *harness.SuiteResult) {
	w := formatter.Writer
	for _, o := range suite.Results {
		if o.Pass {
			fmt.Fprintln(w, formatter.OK(o.Name))
			continue
		}
		fmt.Fprintln(w, formatter.Fail(o.Name))
		for _, e := range o.Errors {
			fmt.Fprintf(w, "  %s\n", strings.TrimSpace(e))
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d passed, %d failed, %d total\n", suite.Passed, suite.Failed, suite.TotalScenarios)
}
