package engine

// Observer receives dispatcher callbacks synchronously, on the executor
// goroutine. Implementations must not call back into the Dispatcher.
type Observer interface {
	OnTransition(t Transition)
	OnOutcome(o Outcome)
}

// NopObserver ignores every callback.
type NopObserver struct{}

func (NopObserver) OnTransition(Transition) {}
func (NopObserver) OnOutcome(Outcome)       {}

// ObserverFuncs adapts optional functions to the Observer interface.
type ObserverFuncs struct {
	Transition func(Transition)
	Outcome    func(Outcome)
}

// OnTransition calls f.Transition if set.
func (f ObserverFuncs) OnTransition(t Transition) {
	if f.Transition != nil {
		f.Transition(t)
	}
}

// OnOutcome calls f.Outcome if set.
func (f ObserverFuncs) OnOutcome(o Outcome) {
	if f.Outcome != nil {
		f.Outcome(o)
	}
}

// MultiObserver fans callbacks out in slice order.
type MultiObserver []Observer

// OnTransition forwards t to every observer.
func (m MultiObserver) OnTransition(t Transition) {
	for _, o := range m {
		o.OnTransition(t)
	}
}

// OnOutcome forwards o to every observer.
func (m MultiObserver) OnOutcome(o Outcome) {
	for _, obs := range m {
		obs.OnOutcome(o)
	}
}

// Recorder keeps every callback in memory, in order. Used by tests and the
// conformance harness.
type Recorder struct {
	Transitions []Transition
	Outcomes    []Outcome
}

// OnTransition appends t.
func (r *Recorder) OnTransition(t Transition) {
	r.Transitions = append(r.Transitions, t)
}

// OnOutcome appends o.
func (r *Recorder) OnOutcome(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
}

// Reset clears the recording.
func (r *Recorder) Reset() {
	r.Transitions = nil
	r.Outcomes = nil
}
