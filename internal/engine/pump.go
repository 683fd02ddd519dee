package engine

import (
	"context"
	"log/slog"
)

// Pump delivers host events to a Dispatcher on a single executor goroutine.
//
// Thread-safety model:
//   - Post(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//
// The pump only moves events to the executor. It does not retry: an event
// the dispatcher drops is gone.
type Pump struct {
	d      *Dispatcher
	queue  *eventQueue
	logger *slog.Logger
}

// NewPump creates a pump feeding d.
func NewPump(d *Dispatcher) *Pump {
	return &Pump{
		d:      d,
		queue:  newEventQueue(d.clock),
		logger: d.logger,
	}
}

// Post submits ev for dispatch. The event is stamped with its seq as it
// enters the queue, so seq order is dispatch order even when events from
// several goroutines interleave.
//
// Returns false if the pump has been stopped.
func (p *Pump) Post(ev Event) bool {
	return p.queue.Enqueue(ev)
}

// Pending returns the number of posted events not yet dispatched.
func (p *Pump) Pending() int {
	return p.queue.Len()
}

// Run dispatches posted events until ctx is cancelled or Stop is called and
// the queue has drained.
//
// Run must be called from exactly one goroutine: it is the executor.
func (p *Pump) Run(ctx context.Context) error {
	p.logger.Info("pump starting")

	var invoked, dropped int
	for {
		// A cancelled context stops the backlog too, not only an idle wait.
		if err := ctx.Err(); err != nil {
			p.logger.Info("pump stopping: context cancelled", "invoked", invoked, "dropped", dropped, "pending", p.queue.Len())
			p.queue.Close()
			return err
		}

		ev, ok := p.queue.TryDequeue()
		if ok {
			out := p.d.Dispatch(ctx, ev)
			if out.Invoked() {
				invoked++
			} else {
				dropped++
			}
			continue
		}

		select {
		case <-ctx.Done():
			p.logger.Info("pump stopping: context cancelled", "invoked", invoked, "dropped", dropped)
			p.queue.Close()
			return ctx.Err()

		case <-p.queue.Wait():
			// A stale coalesced signal can fire with nothing queued; only a
			// closed, empty queue ends the loop.
			if p.queue.Drained() {
				p.logger.Info("pump stopping: queue closed", "invoked", invoked, "dropped", dropped)
				return nil
			}
		}
	}
}

// Stop refuses further posts. Run returns once the queue is empty.
func (p *Pump) Stop() {
	p.queue.Close()
}
