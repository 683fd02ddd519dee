package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileSource(t *testing.T) {
	decls, err := CompileSource("inline.cue", `routine: Ping: body: [["return", "pong"]]`)
	require.NoError(t, err)
	require.Len(t, decls, 1)
	assert.Equal(t, "Ping", decls[0].Name)
}

func TestCompileSource_SyntaxErrorHasPosition(t *testing.T) {
	_, err := CompileSource("broken.cue", "routine: {")
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "broken.cue", ce.Pos.Filename())
}
