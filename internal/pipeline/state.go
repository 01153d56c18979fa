package pipeline

import "fmt"

// State is a session's position in the pipeline.
type State int

// Session states in pipeline order. Failed is reachable from every
// non-terminal state.
const (
	Idle State = iota
	Transcribing
	Generating
	Synthesizing
	Stitching
	Complete
	Failed
)

var stateNames = [...]string{
	Idle:         "idle",
	Transcribing: "transcribing",
	Generating:   "generating",
	Synthesizing: "synthesizing",
	Stitching:    "stitching",
	Complete:     "complete",
	Failed:       "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText renders the state by name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == Complete || s == Failed
}

// next lists the single forward successor of each non-terminal state.
var next = map[State]State{
	Idle:         Transcribing,
	Transcribing: Generating,
	Generating:   Synthesizing,
	Synthesizing: Stitching,
	Stitching:    Complete,
}

// CanTransition reports whether from → to is a legal move.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == Failed {
		return true
	}
	return next[from] == to
}
