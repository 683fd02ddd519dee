package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/reentry/internal/ir"
	"github.com/roach88/reentry/internal/queryir"
	"github.com/roach88/reentry/internal/querysql"
)

// dispatchColumns is the column list every dispatch read scans.
var dispatchColumns = []string{
	"id", "event_id", "seq", "routine", "params", "depth", "outcome", "reason",
	"return_value", "error", "backed_up", "requested", "script_hash",
	"engine_version", "ir_version",
}

// dispatchOrder is the deterministic journal order: arrival seq, then
// event id for rows stamped at the same seq.
const dispatchOrder = "seq ASC, event_id ASC COLLATE BINARY"

// Schema lists the journal columns that trace filters may reference.
var Schema = queryir.Schema{Tables: map[string]map[string]queryir.Field{
	"dispatches": {
		"id":          {Type: queryir.FieldText},
		"event_id":    {Type: queryir.FieldText},
		"seq":         {Type: queryir.FieldInt},
		"routine":     {Type: queryir.FieldText, NoCase: true},
		"depth":       {Type: queryir.FieldInt},
		"outcome":     {Type: queryir.FieldText},
		"reason":      {Type: queryir.FieldText},
		"error":       {Type: queryir.FieldText},
		"backed_up":   {Type: queryir.FieldBool},
		"requested":   {Type: queryir.FieldText},
		"script_hash": {Type: queryir.FieldText},
	},
}}

func newCompiler() *querysql.SQLCompiler {
	c := querysql.NewSQLCompiler(Schema)
	c.OrderKeys["dispatches"] = dispatchOrder
	return c
}

// ReadDispatch retrieves one record by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadDispatch(ctx context.Context, id string) (ir.DispatchRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, event_id, seq, routine, params, depth, outcome, reason,
		       return_value, error, backed_up, requested, script_hash,
		       engine_version, ir_version
		FROM dispatches
		WHERE id = ?
	`, id)
	return scanDispatch(row)
}

// ReadAllDispatches returns the whole journal in seq order.
func (s *Store) ReadAllDispatches(ctx context.Context) ([]ir.DispatchRecord, error) {
	return s.QueryDispatches(ctx, nil, 0)
}

// QueryDispatches returns the records matching filter in seq order.
// A nil filter matches everything; limit 0 means no limit.
func (s *Store) QueryDispatches(ctx context.Context, filter queryir.Predicate, limit int) ([]ir.DispatchRecord, error) {
	query, args, err := newCompiler().Compile(queryir.Select{
		From:    "dispatches",
		Columns: dispatchColumns,
		Filter:  filter,
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("query dispatches: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query dispatches: %w", err)
	}
	defer rows.Close()

	records := []ir.DispatchRecord{}
	for rows.Next() {
		rec, err := scanDispatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dispatch: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatches: %w", err)
	}
	return records, nil
}

// QueryDispatchesWhere parses expr as a trace filter and runs it.
func (s *Store) QueryDispatchesWhere(ctx context.Context, expr string, limit int) ([]ir.DispatchRecord, error) {
	filter, err := queryir.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse filter: %w", err)
	}
	return s.QueryDispatches(ctx, filter, limit)
}

// GetLastSeq returns the highest seq in the journal, or 0 if empty.
// A resumed run starts its clock here.
func (s *Store) GetLastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM dispatches`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return seq.Int64, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDispatch(row scanner) (ir.DispatchRecord, error) {
	var rec ir.DispatchRecord
	var outcome, paramsJSON, returnJSON string

	if err := row.Scan(
		&rec.ID, &rec.EventID, &rec.Seq, &rec.Routine, &paramsJSON, &rec.Depth,
		&outcome, &rec.Reason, &returnJSON, &rec.Error, &rec.BackedUp,
		&rec.Requested, &rec.ScriptHash, &rec.EngineVersion, &rec.IRVersion,
	); err != nil {
		return ir.DispatchRecord{}, err
	}
	rec.Outcome = ir.Outcome(outcome)

	params, err := unmarshalParams(paramsJSON)
	if err != nil {
		return ir.DispatchRecord{}, err
	}
	rec.Params = params

	ret, err := unmarshalReturn(returnJSON)
	if err != nil {
		return ir.DispatchRecord{}, err
	}
	rec.Return = ret

	return rec, nil
}
