package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const counterScript = `
package script

routine: Counter: {
	params: ["a", "b"]
	locals: ["sum"]
	body: [
		["set", "sum", "%a%"],
		["add", "sum", "%b%"],
		["return", "%sum%"],
	]
}

routine: Recur: {
	params: ["n"]
	locals: ["x"]
	max_instances: 2
	body: [
		["set", "x", "%n%"],
		["dispatch", "Recur", "inner"],
		["return", "%x%"],
	]
}
`

// writeScript creates a script directory holding src as routines.cue.
func writeScript(t *testing.T, src string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "script")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "routines.cue"), []byte(src), 0o644))
	return dir
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs cmd with args and returns its combined output.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
