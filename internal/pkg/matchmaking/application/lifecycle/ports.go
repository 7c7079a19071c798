package lifecycle

import (
	"context"
	"fmt"

	match "go-stranger/internal/pkg/matchmaking/application/domain"
	"go-stranger/internal/pkg/matchmaking/application/usecase"
)

// Conn is one direct peer session. Events delivers the tagged transport events;
// after EventClosed or EventErrored nothing else is delivered.
type Conn interface {
	Peer() match.TransportAddress
	Send(payload string) error
	Close() error
	Events() <-chan match.Event
}

// EndpointEventKind tags notifications from the local transport endpoint.
type EndpointEventKind int

const (
	// EndpointOpened: registered with the rendezvous service; Address is set.
	EndpointOpened EndpointEventKind = iota
	// EndpointConnection: a remote peer opened an inbound session; Conn is set.
	EndpointConnection
	// EndpointDisconnected: the rendezvous link dropped; the endpoint reconnects on its own.
	EndpointDisconnected
	// EndpointFailed: signaling failed; Retryable tells whether reopening may help.
	EndpointFailed
)

func (k EndpointEventKind) String() string {
	switch k {
	case EndpointOpened:
		return "opened"
	case EndpointConnection:
		return "connection"
	case EndpointDisconnected:
		return "disconnected"
	case EndpointFailed:
		return "failed"
	default:
		return fmt.Sprintf("endpoint_event(%d)", int(k))
	}
}

type EndpointEvent struct {
	Kind      EndpointEventKind
	Address   match.TransportAddress
	Conn      Conn
	Err       error
	Retryable bool
}

// Endpoint is the local side of the peer transport collaborator.
type Endpoint interface {
	// Open starts registering with the rendezvous service. EndpointOpened follows on success.
	Open(ctx context.Context) error
	// Reopen drops the current registration and registers again under a fresh address.
	Reopen(ctx context.Context) error
	Events() <-chan EndpointEvent
	// Dial starts an outbound session. The returned Conn emits EventOpened once usable.
	Dial(ctx context.Context, remote match.TransportAddress) (Conn, error)
	Close() error
}

// IdentityStore hands out the persistent local identity.
type IdentityStore interface {
	GetOrCreate() (match.Identity, error)
}

// Presence is the subset of the presence registry a session drives.
type Presence interface {
	RefreshPresence(ctx context.Context, id match.Identity, addr match.TransportAddress) error
	CountActive(ctx context.Context) (int64, error)
	RemovePresence(ctx context.Context, id match.Identity) error
	Stop()
}

// Matchmaker is the subset of the matchmaking controller a session drives.
type Matchmaker interface {
	Search(ctx context.Context, self match.TransportAddress) (<-chan usecase.Outcome, error)
	Cancel(ctx context.Context)
}

var (
	_ Presence   = (*usecase.PresenceRegistry)(nil)
	_ Matchmaker = (*usecase.Controller)(nil)
)
