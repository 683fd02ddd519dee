package compiler

import (
	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/reentry/internal/ir"
)

// CompileSource compiles a script held in memory, such as the inline
// script of a harness scenario. name is used in error positions.
func CompileSource(name, src string) ([]ir.RoutineDecl, error) {
	v := cuecontext.New().CompileString(src, cue.Filename(name))
	return CompileScript(v)
}
