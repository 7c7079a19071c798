package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	match "go-stranger/internal/pkg/matchmaking/application/domain"
)

var errUnknownPeer = errors.New("peer not registered")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticIdentity match.Identity

func (s staticIdentity) GetOrCreate() (match.Identity, error) { return match.Identity(s), nil }

// fakeNet is an in-process rendezvous service: endpoints register under a fresh
// address and Dial hands the remote endpoint the other half of a conn pair.
type fakeNet struct {
	mu        sync.Mutex
	seq       int
	endpoints map[match.TransportAddress]*fakeEndpoint
}

func newFakeNet() *fakeNet {
	return &fakeNet{endpoints: make(map[match.TransportAddress]*fakeEndpoint)}
}

type fakeEndpoint struct {
	net    *fakeNet
	silent bool
	stall  bool
	events chan EndpointEvent

	mu     sync.Mutex
	addr   match.TransportAddress
	dialed []*fakeConn
}

func (n *fakeNet) endpoint() *fakeEndpoint {
	return &fakeEndpoint{net: n, events: make(chan EndpointEvent, 32)}
}

// silentEndpoint never completes address acquisition.
func (n *fakeNet) silentEndpoint() *fakeEndpoint {
	ep := n.endpoint()
	ep.silent = true
	return ep
}

func (e *fakeEndpoint) Open(context.Context) error {
	if e.silent {
		return nil
	}
	e.net.mu.Lock()
	e.net.seq++
	addr := match.TransportAddress(fmt.Sprintf("peer-%d", e.net.seq))
	e.net.endpoints[addr] = e
	e.net.mu.Unlock()

	e.mu.Lock()
	e.addr = addr
	e.mu.Unlock()
	e.emit(EndpointEvent{Kind: EndpointOpened, Address: addr})
	return nil
}

func (e *fakeEndpoint) Reopen(ctx context.Context) error {
	e.unregister()
	return e.Open(ctx)
}

func (e *fakeEndpoint) Events() <-chan EndpointEvent { return e.events }

func (e *fakeEndpoint) Address() match.TransportAddress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addr
}

// stallingEndpoint hands out outbound sessions that never open.
func (n *fakeNet) stallingEndpoint() *fakeEndpoint {
	ep := n.endpoint()
	ep.stall = true
	return ep
}

func (e *fakeEndpoint) Dial(_ context.Context, remote match.TransportAddress) (Conn, error) {
	if e.stall {
		local, _ := newConnPair(e.Address(), remote)
		e.mu.Lock()
		e.dialed = append(e.dialed, local)
		e.mu.Unlock()
		return local, nil
	}

	e.net.mu.Lock()
	target, ok := e.net.endpoints[remote]
	e.net.mu.Unlock()
	if !ok {
		return nil, errUnknownPeer
	}

	local, inbound := newConnPair(e.Address(), remote)
	local.events <- match.Event{Kind: match.EventOpened}
	inbound.events <- match.Event{Kind: match.EventOpened}
	target.emit(EndpointEvent{Kind: EndpointConnection, Conn: inbound})
	return local, nil
}

func (e *fakeEndpoint) Close() error {
	e.unregister()
	return nil
}

func (e *fakeEndpoint) emit(ev EndpointEvent) {
	e.events <- ev
}

func (e *fakeEndpoint) unregister() {
	addr := e.Address()
	e.net.mu.Lock()
	if e.net.endpoints[addr] == e {
		delete(e.net.endpoints, addr)
	}
	e.net.mu.Unlock()
}

type fakeConn struct {
	peer   match.TransportAddress
	events chan match.Event
	other  *fakeConn
	state  *pairState
}

type pairState struct {
	mu     sync.Mutex
	closed bool
}

// newConnPair returns the dialer half (peer = to) and the inbound half (peer = from).
func newConnPair(from, to match.TransportAddress) (*fakeConn, *fakeConn) {
	state := &pairState{}
	a := &fakeConn{peer: to, events: make(chan match.Event, 32), state: state}
	b := &fakeConn{peer: from, events: make(chan match.Event, 32), state: state}
	a.other, b.other = b, a
	return a, b
}

func (c *fakeConn) Peer() match.TransportAddress { return c.peer }

func (c *fakeConn) Events() <-chan match.Event { return c.events }

func (c *fakeConn) Send(payload string) error {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	if c.state.closed {
		return errors.New("session closed")
	}
	c.other.events <- match.Event{Kind: match.EventData, Payload: payload}
	return nil
}

// Close tears down both halves; only the remote half observes EventClosed.
func (c *fakeConn) Close() error {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	if c.state.closed {
		return nil
	}
	c.state.closed = true
	c.other.events <- match.Event{Kind: match.EventClosed}
	return nil
}

func (e *fakeEndpoint) dials() []*fakeConn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*fakeConn(nil), e.dialed...)
}

func (c *fakeConn) isClosed() bool {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	return c.state.closed
}

// fail injects a transport error on this half.
func (c *fakeConn) fail(err error) {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	c.events <- match.Event{Kind: match.EventErrored, Err: err}
}
