package session

// State is the lifecycle phase of a session. Transitions are one-way:
//
//	Uninitialized -> Initializing -> Ready -> ShuttingDown -> Closed
//
// A handshake failure short-circuits Initializing directly to Closed.
type State int32

const (
	// Uninitialized is the state before any handshake traffic.
	Uninitialized State = iota
	// Initializing means the handshake is in flight.
	Initializing
	// Ready means capabilities are negotiated and domain traffic may flow.
	Ready
	// ShuttingDown means Close has begun; no new requests are accepted.
	ShuttingDown
	// Closed is terminal.
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case ShuttingDown:
		return "shutting_down"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// validTransitions encodes the allowed edges of the state machine.
var validTransitions = map[State][]State{
	Uninitialized: {Initializing, ShuttingDown, Closed},
	Initializing:  {Ready, ShuttingDown, Closed},
	Ready:         {ShuttingDown, Closed},
	ShuttingDown:  {Closed},
	Closed:        {},
}

func transitionAllowed(from, to State) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
