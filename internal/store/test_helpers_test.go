package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/reentry/internal/ir"
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// invokedRecord creates an invoked record with minimal required fields.
func invokedRecord(eventID, routine string, seq int64, ret ir.Value, params ...ir.Value) ir.DispatchRecord {
	if params == nil {
		params = []ir.Value{}
	}
	return ir.DispatchRecord{
		EventID: eventID,
		Seq:     seq,
		Routine: routine,
		Params:  params,
		Outcome: ir.OutcomeInvoked,
		Return:  ret,
	}
}

// droppedRecord creates a dropped record.
func droppedRecord(eventID, routine string, seq int64, depth int, reason string) ir.DispatchRecord {
	return ir.DispatchRecord{
		EventID: eventID,
		Seq:     seq,
		Routine: routine,
		Params:  []ir.Value{},
		Depth:   depth,
		Outcome: ir.OutcomeDropped,
		Reason:  reason,
		Return:  ir.Empty{},
	}
}
