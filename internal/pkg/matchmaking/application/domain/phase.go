package match

// Phase is the user-visible lifecycle state of a client session.
type Phase int

const (
	PhaseConnecting Phase = iota
	PhaseReady
	PhaseSearching
	PhaseConnected
	PhaseError
	PhaseDisconnected
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseReady:
		return "ready"
	case PhaseSearching:
		return "searching"
	case PhaseConnected:
		return "connected"
	case PhaseError:
		return "error"
	case PhaseDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// SearchState tracks where a searching participant is in the pool protocol.
type SearchState int

const (
	SearchIdle SearchState = iota
	SearchPolling
	SearchDialing
	SearchAwaitingIncoming
)

func (s SearchState) String() string {
	switch s {
	case SearchIdle:
		return "idle"
	case SearchPolling:
		return "polling"
	case SearchDialing:
		return "dialing"
	case SearchAwaitingIncoming:
		return "awaiting_incoming"
	default:
		return "unknown"
	}
}
