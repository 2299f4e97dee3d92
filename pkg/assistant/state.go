package assistant

import "fmt"

// State is the lifecycle state of the assistant.
type State int

const (
	// StateIdle waits for a resume or manual trigger.
	StateIdle State = iota
	// StateDetecting watches face signals for attention.
	StateDetecting
	// StateListening waits for the end of an utterance.
	StateListening
	// StateProcessing runs transcription and the model round-trip.
	StateProcessing
	// StateSpeaking plays the reply.
	StateSpeaking
	// StateError shows a failure before returning to idle.
	StateError
)

var stateNames = [...]string{
	StateIdle:       "idle",
	StateDetecting:  "detecting",
	StateListening:  "listening",
	StateProcessing: "processing",
	StateSpeaking:   "speaking",
	StateError:      "error",
}

// String returns the lowercase state name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(stateNames) {
		return nil, fmt.Errorf("assistant: unknown state %d", int(s))
	}
	return []byte(stateNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	st, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// ParseState converts a state name back into a State.
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if n == name {
			return State(i), nil
		}
	}
	return StateIdle, fmt.Errorf("assistant: unknown state %q", name)
}

// Busy reports whether a turn owns the state.
func (s State) Busy() bool {
	return s == StateProcessing || s == StateSpeaking
}
