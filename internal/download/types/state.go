package types

import "fmt"

// SessionState is the lifecycle state of a download session.
type SessionState int

const (
	StateIdle SessionState = iota
	StateRunning
	StatePaused
	StateCancelling
	StateFinished
	StateCancelled
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateCancelling:
		return "cancelling"
	case StateFinished:
		return "finished"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition is accepted.
func (s SessionState) IsTerminal() bool {
	return s == StateFinished || s == StateCancelled || s == StateFailed
}

// IsActive reports whether the session still owns a worker.
func (s SessionState) IsActive() bool {
	return s == StateRunning || s == StatePaused || s == StateCancelling
}

// MarshalText lets the state travel as a string in JSON payloads.
func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText is the inverse of MarshalText; unknown names are an error.
func (s *SessionState) UnmarshalText(text []byte) error {
	for st := StateIdle; st <= StateFailed; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}
