package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reentry/internal/engine"
	"github.com/roach88/reentry/internal/ir"
	"github.com/roach88/reentry/internal/store"
)

const eventsYAML = `
events:
  - routine: Counter
    params: [5, 7]
  - routine: Recur
    params: [outer]
  - routine: Missing
  - routine: counter
    params: [1]
    repeat: 2
`

func TestLoadEventFile(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "events.yaml"), eventsYAML)

	ef, err := LoadEventFile(path)
	require.NoError(t, err)
	require.Len(t, ef.Events, 4)

	events, err := ef.hostEvents()
	require.NoError(t, err)
	require.Len(t, events, 5, "repeat expands")
	assert.Equal(t, "counter", events[4].Routine)

	// Repeated events own their params.
	events[3].Params[0] = ir.Int(99)
	assert.Equal(t, ir.Value(ir.Int(1)), events[4].Params[0])
}

func TestLoadEventFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown field", "events:\n  - routine: A\n    prio: 1\n", "prio"},
		{"missing routine", "events:\n  - params: [1]\n", "routine is required"},
		{"too many params", "events:\n  - routine: A\n    params: [1, 2, 3]\n", "at most 2 params"},
		{"negative repeat", "events:\n  - routine: A\n    repeat: -1\n", "repeat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, filepath.Join(t.TempDir(), "events.yaml"), tt.content)
			_, err := LoadEventFile(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRunMissingDatabase(t *testing.T) {
	dir := writeScript(t, counterScript)
	events := writeFile(t, filepath.Join(t.TempDir(), "events.yaml"), eventsYAML)

	_, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), dir, "--events", events)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--db is required")
}

func TestRunMissingEventsFlag(t *testing.T) {
	dir := writeScript(t, counterScript)
	_, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), dir, "--db", filepath.Join(t.TempDir(), "j.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "events")
}

func TestRunNonExistentScriptDir(t *testing.T) {
	events := writeFile(t, filepath.Join(t.TempDir(), "events.yaml"), eventsYAML)
	db := filepath.Join(t.TempDir(), "j.db")

	_, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), "/nonexistent/script", "--events", events, "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunJournalsEveryOutcome(t *testing.T) {
	dir := writeScript(t, counterScript)
	events := writeFile(t, filepath.Join(t.TempDir(), "events.yaml"), eventsYAML)
	db := filepath.Join(t.TempDir(), "journal.db")

	buf := &bytes.Buffer{}
	cmd := newRunCommand(&RunOptions{
		RootOptions: &RootOptions{Format: "json", MaxDepth: engine.DefaultMaxDepth},
		IDs:         engine.NewSequenceGenerator("ev"),
	})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{dir, "--events", events, "--db", db})
	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	// 5 posted events plus 2 nested dispatches from Recur.
	assert.Equal(t, 5, resp.Data.Posted)
	assert.Equal(t, 7, resp.Data.Journal)
	assert.Equal(t, 5, resp.Data.Invoked)
	assert.Equal(t, 2, resp.Data.Dropped)
	assert.Equal(t, int64(7), resp.Data.LastSeq)

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	stats, err := st.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, stats.Total)
	assert.Equal(t, 1, stats.ByReason["unknown_routine"])
	assert.Equal(t, 1, stats.ByReason["instance_limit"])
	assert.Equal(t, 2, stats.MaxDepth)
}

func TestRunResumesSeq(t *testing.T) {
	dir := writeScript(t, counterScript)
	events := writeFile(t, filepath.Join(t.TempDir(), "events.yaml"), "events:\n  - routine: Counter\n    params: [1, 1]\n")
	db := filepath.Join(t.TempDir(), "journal.db")

	for i := 0; i < 2; i++ {
		out, err := execute(t, NewRunCommand(&RootOptions{Format: "text", MaxDepth: engine.DefaultMaxDepth}), dir, "--events", events, "--db", db)
		require.NoError(t, err)
		assert.Contains(t, out, "1 invoked, 0 dropped")
	}

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	last, err := st.GetLastSeq(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), last)
}

func TestRunBackupBudget(t *testing.T) {
	dir := writeScript(t, counterScript)
	events := writeFile(t, filepath.Join(t.TempDir(), "events.yaml"), "events:\n  - routine: Recur\n    params: [a]\n")
	db := filepath.Join(t.TempDir(), "journal.db")

	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "json", MaxDepth: engine.DefaultMaxDepth, BackupBudget: 1})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{dir, "--events", events, "--db", db})
	require.NoError(t, cmd.Execute())

	var resp struct {
		Data RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))

	var reasons []string
	for _, row := range resp.Data.Outcomes {
		if row.Reason != "" {
			reasons = append(reasons, row.Reason)
		}
	}
	assert.Equal(t, []string{string(engine.ReasonBackupExhausted)}, reasons)
}
