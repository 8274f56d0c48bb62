package client

// State is where a Client is in its lifecycle
type State int

const (
	StateConnecting State = iota
	StateAuthenticating
	StateAwaitingTune
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAwaitingTune:
		return "awaiting tune"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
