package match

import "fmt"

// EventKind tags the variants a transport session can emit.
type EventKind int

const (
	EventOpened EventKind = iota
	EventData
	EventClosed
	EventErrored
)

func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "opened"
	case EventData:
		return "data"
	case EventClosed:
		return "closed"
	case EventErrored:
		return "errored"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a single transport session notification.
// Payload is set for EventData, Err for EventErrored.
type Event struct {
	Kind    EventKind
	Payload string
	Err     error
}

// Terminal reports whether no further events follow this one.
func (e Event) Terminal() bool {
	return e.Kind == EventClosed || e.Kind == EventErrored
}
