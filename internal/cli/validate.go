package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/reentry/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                        `json:"valid"`
	Routines []string                    `json:"routines,omitempty"`
	Hash     string                      `json:"hash,omitempty"`
	Errors   []compiler.ValidationError  `json:"errors,omitempty"`
	Warnings []compiler.RecursionWarning `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <script-dir>",
		Short: "Validate a routine script",
		Long: `Validate the CUE routine script in a directory.

Compiles every routine, checks names, variables, action arities and
dispatch targets, and reports dispatch cycles. Recursion is legal, so
cycles are warnings and never fail validation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	result, err := LoadScript(dir)
	if result == nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputValidateError(formatter, ErrCodeGeneric, err.Error())
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", result.FileCount, dir)
	for _, d := range result.Decls {
		formatter.VerboseLog("Validating routine: %s", d.Name)
	}

	if err != nil {
		return outputValidationErrors(formatter, ValidationErrors(err))
	}
	return outputValidateSuccess(formatter, result)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result *LoadResult) error {
	names := make([]string, len(result.Decls))
	for i, d := range result.Decls {
		names[i] = d.Name
	}

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{
			Valid:    true,
			Routines: names,
			Hash:     result.Hash,
			Warnings: result.Warnings,
		})
	}

	w := formatter.Writer
	fmt.Fprintln(w, formatter.OK(fmt.Sprintf("Script valid: %d routine(s)", len(names))))
	fmt.Fprintf(w, "  %s\n", strings.Join(names, ", "))
	for _, warn := range result.Warnings {
		fmt.Fprintln(w, formatter.Warn(fmt.Sprintf("%s: %s", warn.Level, warn.Message)))
		fmt.Fprintf(w, "    %s\n", formatter.Dim(strings.Join(warn.Path, " -> ")))
	}
	return nil
}

// outputValidateError outputs a load failure.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, formatter.Fail("Validation failed"))
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %s\n", err.Error())
	}

	// Validation failures = exit code 1
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
