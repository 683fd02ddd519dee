package store

import (
	"context"
	"fmt"

	"github.com/roach88/reentry/internal/ir"
	"github.com/roach88/reentry/internal/queryir"
)

// Stats summarises the journal.
type Stats struct {
	Total    int            `json:"total"`
	Invoked  int            `json:"invoked"`
	Dropped  int            `json:"dropped"`
	ByReason map[string]int `json:"by_reason"` // Drop counts keyed by reason
	MaxDepth int            `json:"max_depth"` // Deepest arrival depth recorded
	LastSeq  int64          `json:"last_seq"`
}

// Stats counts journal rows by outcome and drop reason.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{ByReason: map[string]int{}}
	c := newCompiler()

	query, args, err := c.Compile(queryir.Count{From: "dispatches", GroupBy: "outcome"})
	if err != nil {
		return st, fmt.Errorf("stats: %w", err)
	}
	byOutcome, err := s.groupCounts(ctx, query, args)
	if err != nil {
		return st, fmt.Errorf("stats: %w", err)
	}
	st.Invoked = byOutcome["invoked"]
	st.Dropped = byOutcome["dropped"]
	st.Total = st.Invoked + st.Dropped

	query, args, err = c.Compile(queryir.Count{
		From:    "dispatches",
		GroupBy: "reason",
		Filter:  queryir.Equals{Field: "outcome", Value: ir.String("dropped")},
	})
	if err != nil {
		return st, fmt.Errorf("stats: %w", err)
	}
	if st.ByReason, err = s.groupCounts(ctx, query, args); err != nil {
		return st, fmt.Errorf("stats: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(depth), 0), COALESCE(MAX(seq), 0) FROM dispatches`,
	).Scan(&st.MaxDepth, &st.LastSeq); err != nil {
		return st, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

func (s *Store) groupCounts(ctx context.Context, query string, args []any) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key] = n
	}
	return out, rows.Err()
}
