package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/reentry/internal/cli"
	"github.com/roach88/reentry/internal/ir"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	root := cli.NewRootCommand()
	root.Version = fmt.Sprintf("%s (commit %s, engine %s, ir %s)", version, commit, ir.EngineVersion, ir.IRVersion)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
