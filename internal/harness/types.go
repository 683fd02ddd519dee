package harness

import "github.com/roach88/reentry/internal/ir"

// TraceEvent is one journal row as the harness reports it.
type TraceEvent struct {
	Seq       int64      `json:"seq"`
	EventID   string     `json:"event_id"`
	Routine   string     `json:"routine"`
	Params    []ir.Value `json:"params"`
	Depth     int        `json:"depth"`
	Outcome   string     `json:"outcome"`
	Reason    string     `json:"reason,omitempty"`
	Return    ir.Value   `json:"return,omitempty"`
	Error     string     `json:"error,omitempty"`
	Requested string     `json:"requested,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Trace is the dispatch journal in seq order, nested dispatches
	// included.
	Trace []TraceEvent `json:"trace"`

	// Errors lists every mismatch. Empty when Pass is true.
	Errors []string `json:"errors,omitempty"`

	// PeakDepth is the deepest nesting level reached.
	PeakDepth int `json:"peak_depth"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a mismatch and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func traceFromRecords(recs []ir.DispatchRecord) []TraceEvent {
	out := make([]TraceEvent, len(recs))
	for i, rec := range recs {
		out[i] = TraceEvent{
			Seq:       rec.Seq,
			EventID:   rec.EventID,
			Routine:   rec.Routine,
			Params:    rec.Params,
			Depth:     rec.Depth,
			Outcome:   string(rec.Outcome),
			Reason:    rec.Reason,
			Return:    rec.Return,
			Error:     rec.Error,
			Requested: rec.Requested,
		}
	}
	return out
}
