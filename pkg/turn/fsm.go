package turn

// validTransitions defines the turn table. thinking → thinking covers the
// transcript text update that produces a new StateEvent without changing
// the externally visible state.
var validTransitions = map[State][]State{
	StateIdle:      {StateListening},
	StateListening: {StateThinking, StateIdle},
	StateThinking:  {StateThinking, StateSpeaking, StateIdle},
	StateSpeaking:  {StateIdle},
}

func transitionValid(from, to State) bool {
	allowed, exists := validTransitions[from]
	if !exists {
		return false
	}
	for _, state := range allowed {
		if state == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError represents an invalid state transition attempt
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return "invalid state transition from " + e.From.String() + " to " + e.To.String()
}
