package turn

import "testing"

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from  State
		to    State
		valid bool
	}{
		{StateIdle, StateListening, true},
		{StateIdle, StateThinking, false},
		{StateIdle, StateSpeaking, false},
		{StateIdle, StateIdle, false},
		{StateListening, StateThinking, true},
		{StateListening, StateIdle, true},
		{StateListening, StateSpeaking, false},
		{StateThinking, StateThinking, true},
		{StateThinking, StateSpeaking, true},
		{StateThinking, StateIdle, true},
		{StateThinking, StateListening, false},
		{StateSpeaking, StateIdle, true},
		{StateSpeaking, StateListening, false},
		{StateSpeaking, StateThinking, false},
	}
	for _, tc := range cases {
		if got := transitionValid(tc.from, tc.to); got != tc.valid {
			t.Fatalf("transitionValid(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.valid)
		}
	}
}

func TestInvalidTransitionError(t *testing.T) {
	err := &InvalidTransitionError{From: StateSpeaking, To: StateThinking}
	want := "invalid state transition from SPEAKING to THINKING"
	if err.Error() != want {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
}

func TestStateWireForm(t *testing.T) {
	cases := map[State]string{
		StateIdle:      "idle",
		StateListening: "listening",
		StateThinking:  "thinking",
		StateSpeaking:  "speaking",
	}
	for state, want := range cases {
		b, err := state.MarshalJSON()
		if err != nil {
			t.Fatalf("marshal %s: %v", state, err)
		}
		if string(b) != `"`+want+`"` {
			t.Fatalf("marshal %s = %s, want %q", state, b, want)
		}
		var back State
		if err := back.UnmarshalJSON(b); err != nil {
			t.Fatalf("unmarshal %s: %v", b, err)
		}
		if back != state {
			t.Fatalf("roundtrip %s = %s", state, back)
		}
	}
}
