package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"github.com/hashicorp/go-multierror"

	"github.com/roach88/reentry/internal/compiler"
	"github.com/roach88/reentry/internal/ir"
	"github.com/roach88/reentry/internal/routine"
)

// Error code constants - unified across all CLI commands.
// Script validation codes (E1xx) come from the compiler package.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeScanError     = "E002" // Directory scan error
	ErrCodeNoFiles       = "E003" // No CUE files found
	ErrCodeLoadFailed    = "E004" // CUE load failed
	ErrCodeNotFound      = "E005" // Path not found
	ErrCodeBuildFailed   = "E006" // CUE build failed
	ErrCodeCompileFailed = "E007" // routine struct did not compile
	ErrCodeNoRoutines    = "E008" // script declares no routines
	ErrCodeJournal       = "E009" // journal database error
	ErrCodeBadEvent      = "E010" // malformed event or parameter
)

// LoadResult is a compiled routine script.
type LoadResult struct {
	Decls     []ir.RoutineDecl
	Hash      string // ir.ScriptHash of Decls
	FileCount int    // Number of CUE files found
	Warnings  []compiler.RecursionWarning
}

// Table builds a fresh routine table from the script.
func (r *LoadResult) Table() (*routine.Table, error) {
	return routine.Load(r.Decls)
}

// LoadError is a failure to read or build the script itself.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadScript loads, compiles and validates the CUE script in dir.
//
// A *LoadError with a nil result means the directory or CUE build failed.
// A non-nil result with an error means the script was read but compiling
// or validating it failed; the error is a *multierror.Error whose entries
// are compiler.ValidationError values.
func LoadScript(dir string) (*LoadResult, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("script directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing script directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	result := &LoadResult{FileCount: len(cueFiles)}

	decls, err := compiler.CompileScript(value)
	if err != nil {
		return result, multierror.Append(nil, compileValidationError(err))
	}
	result.Decls = decls
	if len(decls) == 0 {
		return result, multierror.Append(nil, compiler.ValidationError{
			Field:   "routine",
			Message: "no routines found in script",
			Code:    ErrCodeNoRoutines,
		})
	}

	var merr *multierror.Error
	for _, ve := range compiler.Validate(decls) {
		merr = multierror.Append(merr, ve)
	}
	if err := merr.ErrorOrNil(); err != nil {
		return result, err
	}

	hash, err := ir.ScriptHash(decls)
	if err != nil {
		return result, multierror.Append(nil, compiler.ValidationError{
			Field:   "routine",
			Message: fmt.Sprintf("hash script: %v", err),
			Code:    ErrCodeGeneric,
		})
	}
	result.Hash = hash
	result.Warnings = compiler.AnalyzeRecursion(decls)
	return result, nil
}

// ValidationErrors flattens an error returned by LoadScript into its
// validation entries. A *LoadError becomes a single entry with its code.
func ValidationErrors(err error) []compiler.ValidationError {
	if err == nil {
		return nil
	}
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		return []compiler.ValidationError{asValidationError(err)}
	}
	out := make([]compiler.ValidationError, 0, len(merr.Errors))
	for _, e := range merr.Errors {
		out = append(out, asValidationError(e))
	}
	return out
}

func asValidationError(err error) compiler.ValidationError {
	var ve compiler.ValidationError
	if errors.As(err, &ve) {
		return ve
	}
	var le *LoadError
	if errors.As(err, &le) {
		return compiler.ValidationError{Field: "load", Message: le.Message, Code: le.Code}
	}
	return compiler.ValidationError{Field: "script", Message: err.Error(), Code: ErrCodeGeneric}
}

// compileValidationError reports a compiler failure with its CUE position.
func compileValidationError(err error) compiler.ValidationError {
	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		msg := ce.Message
		if ce.Pos.IsValid() {
			msg = fmt.Sprintf("%s:%d:%d: %s", filepath.Base(ce.Pos.Filename()), ce.Pos.Line(), ce.Pos.Column(), ce.Message)
		}
		return compiler.ValidationError{Field: ce.Field, Message: msg, Code: ErrCodeCompileFailed}
	}
	return compiler.ValidationError{Field: "routine", Message: err.Error(), Code: ErrCodeCompileFailed}
}

// FindCUEFiles walks the directory and returns all .cue file paths, sorted.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}
