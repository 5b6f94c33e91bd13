package tcp

// State is the connection manager's position in its lifecycle
type State int32

// Connection states. Disconnected is both the initial state and the terminal
// state reached only when the run context is cancelled.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateIdleTimedOut
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateIdleTimedOut:
		return "idle_timed_out"
	default:
		return "unknown"
	}
}

// validTransition reports whether the state machine allows from -> to
func validTransition(from, to State) bool {
	switch to {
	case StateDisconnected:
		return true
	case StateConnecting:
		return from == StateDisconnected || from == StateConnected || from == StateIdleTimedOut
	case StateConnected:
		return from == StateConnecting
	case StateIdleTimedOut:
		return from == StateConnected
	}
	return false
}

// StateObserver is told about every state change. It runs on the read loop
// goroutine and must not block.
type StateObserver func(from, to State)
