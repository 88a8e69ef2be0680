package turn

// StateEvent is the unit broadcast to displays. Text carries a short
// human-readable status: the transcript while thinking, the reply while
// speaking, a failure notice on the idle event after a failed stage.
// Sequence is strictly increasing and bumps on every emitted event,
// including text-only updates within the same state.
type StateEvent struct {
	State    State  `json:"state"`
	Text     string `json:"text"`
	Sequence uint64 `json:"sequence"`
}

// EventListener observes emitted StateEvents. Listeners are notified in
// emission order while the controller holds its lock, so OnStateEvent
// must not block and must not call back into Dispatch.
type EventListener interface {
	OnStateEvent(ev StateEvent)
}
