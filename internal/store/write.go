package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/reentry/internal/ir"
)

// WriteDispatch appends a dispatch record.
// Uses ON CONFLICT(id) DO NOTHING, so writing the same record twice is a
// no-op. Other constraint violations (bad outcome, missing reason) still
// return errors.
func (s *Store) WriteDispatch(ctx context.Context, rec ir.DispatchRecord) error {
	paramsJSON, err := marshalParams(rec.Params)
	if err != nil {
		return fmt.Errorf("write dispatch: %w", err)
	}
	returnJSON, err := marshalReturn(rec.Return)
	if err != nil {
		return fmt.Errorf("write dispatch: %w", err)
	}

	if rec.ID == "" {
		rec.ID, err = ir.DispatchID(rec.EventID, rec.Routine, rec.Params, rec.Depth, rec.Seq)
		if err != nil {
			return fmt.Errorf("write dispatch: %w", err)
		}
	}
	if rec.EngineVersion == "" {
		rec.EngineVersion = ir.EngineVersion
	}
	if rec.IRVersion == "" {
		rec.IRVersion = ir.IRVersion
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dispatches
		(id, event_id, seq, routine, params, depth, outcome, reason, return_value,
		 error, backed_up, requested, script_hash, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.EventID,
		rec.Seq,
		rec.Routine,
		paramsJSON,
		rec.Depth,
		string(rec.Outcome),
		rec.Reason,
		returnJSON,
		rec.Error,
		rec.BackedUp,
		rec.Requested,
		rec.ScriptHash,
		rec.EngineVersion,
		rec.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("write dispatch: %w", err)
	}
	return nil
}

// WriteScript records a compiled routine table the first time it is seen.
// Returns true if a new row was inserted.
func (s *Store) WriteScript(ctx context.Context, hash string, routines []string, seq int64) (bool, error) {
	names, err := json.Marshal(routines)
	if err != nil {
		return false, fmt.Errorf("write script: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO scripts (hash, routines, seq)
		VALUES (?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`, hash, string(names), seq)
	if err != nil {
		return false, fmt.Errorf("write script: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write script: %w", err)
	}
	return n > 0, nil
}
