package engine

// Transition describes one completed action and the state it produced.
type Transition struct {
	// Sequence is monotonic per engine, starting at 1.
	Sequence int64
	Action   Action
	View     View
	State    State
}

// Observer receives a snapshot after every completed action.
//
// Observers must not mutate the engine synchronously. An observer that
// dispatches from inside ObserveTransition has its action queued; it runs
// once the current notification round finishes.
type Observer interface {
	ObserveTransition(Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Transition)

// ObserveTransition calls f(t).
func (f ObserverFunc) ObserveTransition(t Transition) {
	f(t)
}
