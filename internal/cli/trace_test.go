package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reentry/internal/engine"
)

// seedJournal runs eventsYAML through counterScript into a fresh journal.
func seedJournal(t *testing.T) string {
	t.Helper()
	dir := writeScript(t, counterScript)
	events := writeFile(t, filepath.Join(t.TempDir(), "events.yaml"), eventsYAML)
	db := filepath.Join(t.TempDir(), "journal.db")

	cmd := newRunCommand(&RunOptions{
		RootOptions: &RootOptions{Format: "text", MaxDepth: engine.DefaultMaxDepth},
		IDs:         engine.NewSequenceGenerator("ev"),
	})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{dir, "--events", events, "--db", db})
	require.NoError(t, cmd.Execute())
	return db
}

func traceJSON(t *testing.T, args ...string) TraceResult {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func TestTraceMissingDatabaseFlag(t *testing.T) {
	_, err := execute(t, NewTraceCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--db is required")
}

func TestTraceNonExistentDatabase(t *testing.T) {
	out, err := execute(t, NewTraceCommand(&RootOptions{Format: "text"}), "--db", "/nonexistent/journal.db")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "journal not found")
}

func TestTraceAll(t *testing.T) {
	db := seedJournal(t)

	res := traceJSON(t, "--db", db)
	require.Len(t, res.Records, 7)
	for i, row := range res.Records {
		assert.Equal(t, int64(i+1), row.Seq, "seq order")
	}
	assert.Nil(t, res.Stats)
}

func TestTraceWhere(t *testing.T) {
	db := seedJournal(t)

	res := traceJSON(t, "--db", db, "--where", "routine = COUNTER AND outcome = invoked")
	require.Len(t, res.Records, 3)
	for _, row := range res.Records {
		assert.Equal(t, "Counter", row.Routine)
	}

	res = traceJSON(t, "--db", db, "--where", "outcome = dropped")
	require.Len(t, res.Records, 2)
	assert.Equal(t, "unknown_routine", res.Records[0].Reason)
	assert.Equal(t, "instance_limit", res.Records[1].Reason)

	res = traceJSON(t, "--db", db, "--where", "depth >= 1", "--limit", "1")
	require.Len(t, res.Records, 1)
	assert.Equal(t, int64(6), res.Records[0].Seq)
}

func TestTraceStats(t *testing.T) {
	db := seedJournal(t)

	res := traceJSON(t, "--db", db, "--stats")
	require.NotNil(t, res.Stats)
	assert.Equal(t, 7, res.Stats.Total)
	assert.Equal(t, 5, res.Stats.Invoked)
	assert.Equal(t, 2, res.Stats.Dropped)
	assert.Equal(t, int64(7), res.Stats.LastSeq)
}

func TestTraceText(t *testing.T) {
	db := seedJournal(t)

	out, err := execute(t, NewTraceCommand(&RootOptions{Format: "text"}), "--db", db, "--where", "outcome = dropped", "--stats")
	require.NoError(t, err)
	assert.Contains(t, out, "ev-5 Missing (seq 3, depth 0) dropped: unknown_routine")
	assert.Contains(t, out, "Total: 7  Invoked: 5  Dropped: 2")
	assert.Contains(t, out, "  instance_limit: 1")

	out, err = execute(t, NewTraceCommand(&RootOptions{Format: "text"}), "--db", db, "--where", "routine = Nobody")
	require.NoError(t, err)
	assert.Contains(t, out, "No matching dispatches.")
}

func TestTraceBadFilter(t *testing.T) {
	db := seedJournal(t)

	tests := []struct {
		where string
		want  string
	}{
		{"routine =", "parse filter"},
		{"colour = red", "unknown field"},
		{"depth = deep", "want int value"},
	}
	for _, tt := range tests {
		t.Run(tt.where, func(t *testing.T) {
			_, err := execute(t, NewTraceCommand(&RootOptions{Format: "text"}), "--db", db, "--where", tt.where)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
