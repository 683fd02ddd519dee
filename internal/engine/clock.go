package engine

import "sync/atomic"

// Clock is the logical clock that orders host events.
//
// Every event gets a strictly increasing seq when it first reaches the
// dispatcher or the pump. Seq is arrival order; the journal uses it to sort
// dispatches that complete in nesting order.
//
// Safe for concurrent use: the pump stamps from posting goroutines.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that continues after start. Used to resume
// numbering from the journal's last seq.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new seq.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last seq handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
