package engine

import "sync"

// eventQueue is the pump's FIFO of posted host events.
//
// Unbounded: posting never blocks the host. Admission control, not the
// queue, decides what runs; the queue only moves events onto the executor
// goroutine.
//
// The signal channel lets Run wait on the queue and on ctx.Done() in one
// select.
//
// With a clock, unstamped events take their seq under the queue lock, so seq
// order and queue order agree even with concurrent posters.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	clock  *Clock
	signal chan struct{} // Buffered, size 1
}

func newEventQueue(clock *Clock) *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		clock:  clock,
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends ev. Returns false once the queue is closed.
func (q *eventQueue) Enqueue(ev Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	if ev.Seq == 0 && q.clock != nil {
		ev.Seq = q.clock.Next()
	}
	q.events = append(q.events, ev)

	// Non-blocking: a buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front event without blocking.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	ev := q.events[0]
	q.events[0] = Event{} // Release Params for GC

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return ev, true
}

// Wait returns a channel that fires when events may be available. It is
// closed by Close.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of pending events.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Drained reports whether the queue is closed and empty.
func (q *eventQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.events) == 0
}

// Close stops further posting and wakes the waiter.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
