package ir

// Outcome is the host-visible result kind of one dispatch.
type Outcome string

const (
	OutcomeInvoked Outcome = "invoked"
	OutcomeDropped Outcome = "dropped"
)

// DispatchRecord is one journal row describing a finished dispatch.
// Records are written after the outcome is known, so nested dispatches
// appear in completion order; Seq gives arrival order.
type DispatchRecord struct {
	ID        string  `json:"id"`       // Content-addressed (DispatchID)
	EventID   string  `json:"event_id"` // Host event identity
	Seq       int64   `json:"seq"`      // Logical clock at arrival
	Routine   string  `json:"routine"`
	Params    []Value `json:"-"`
	Depth     int     `json:"depth"` // Nesting depth the event arrived at
	Outcome   Outcome `json:"outcome"`
	Reason    string  `json:"reason,omitempty"` // Drop reason; empty when invoked
	Return    Value   `json:"-"`
	Error     string  `json:"error,omitempty"` // Routine-body failure text
	BackedUp  bool    `json:"backed_up"`       // A variable backup record was taken
	Requested string  `json:"requested,omitempty"` // exitapp or reload

	ScriptHash    string `json:"script_hash,omitempty"` // ScriptHash of the routine table
	EngineVersion string `json:"engine_version"`
	IRVersion     string `json:"ir_version"`
}
