// Package session defines the conversational session state enum shared by the
// controller and every component that reports or reacts to it.
package session

import "encoding/json"

// State is the conversational session state.
type State int

const (
	Idle State = iota
	Listening
	Processing
	Speaking
	NetworkError
)

// String returns the wire name of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Processing:
		return "processing"
	case Speaking:
		return "speaking"
	case NetworkError:
		return "network_error"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *State) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	switch name {
	case "listening":
		*s = Listening
	case "processing":
		*s = Processing
	case "speaking":
		*s = Speaking
	case "network_error":
		*s = NetworkError
	default:
		*s = Idle
	}
	return nil
}

// CanEmitUplinkAudio reports whether uplink Opus frames may be sent while in
// this state. Only Listening allows it.
func (s State) CanEmitUplinkAudio() bool {
	return s == Listening
}

// IsRecoverable reports whether the state represents an active conversational
// phase rather than a rest state.
func (s State) IsRecoverable() bool {
	switch s {
	case Listening, Processing, Speaking:
		return true
	default:
		return false
	}
}

// Event describes a state transition with its cause. It is not the shape the
// controller sends to the GUI bridge, which is {"event":"state","value":...}.
type Event struct {
	State    State  `json:"state"`
	Previous State  `json:"previous"`
	Cause    string `json:"cause,omitempty"`
}
