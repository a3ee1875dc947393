package server

// State is the stage a handling unit reached. Units only move forward; a unit that fails
// is closed from the stage it failed in.
type State uint8

const (
	StateAccepted State = iota
	StateReading
	StateDispatching
	StateWriting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAccepted:
		return "accepted"
	case StateReading:
		return "reading_request"
	case StateDispatching:
		return "dispatching"
	case StateWriting:
		return "writing_response"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}
