package peer

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go-stranger/internal/infrastructure/realtime"
	match "go-stranger/internal/pkg/matchmaking/application/domain"
	"go-stranger/internal/pkg/matchmaking/application/lifecycle"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventWait = 15 * time.Second

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startHub(t *testing.T) (*realtime.Hub, string) {
	t.Helper()
	hub := realtime.NewHub(realtime.NewRouter(), discardLogger())
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Router().Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newTestEndpoint(t *testing.T, url string) *Endpoint {
	t.Helper()
	ep := NewEndpoint(Config{SignalURL: url, Loopback: true, RetryDelay: 20 * time.Millisecond, MaxRetries: 3}, discardLogger())
	t.Cleanup(func() { _ = ep.Close() })
	return ep
}

func nextEndpointEvent(t *testing.T, ep *Endpoint, want lifecycle.EndpointEventKind) lifecycle.EndpointEvent {
	t.Helper()
	deadline := time.After(eventWait)
	for {
		select {
		case ev := <-ep.Events():
			if ev.Kind == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event", want)
		}
	}
}

func nextConnEvent(t *testing.T, c lifecycle.Conn, want func(match.Event) bool) match.Event {
	t.Helper()
	deadline := time.After(eventWait)
	for {
		select {
		case ev := <-c.Events():
			if want(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("expected conn event did not arrive")
		}
	}
}

func isKind(k match.EventKind) func(match.Event) bool {
	return func(ev match.Event) bool { return ev.Kind == k }
}

func terminal(ev match.Event) bool { return ev.Terminal() }

func openEndpoint(t *testing.T, url string) (*Endpoint, match.TransportAddress) {
	t.Helper()
	ep := newTestEndpoint(t, url)
	require.NoError(t, ep.Open(context.Background()))
	opened := nextEndpointEvent(t, ep, lifecycle.EndpointOpened)
	require.True(t, opened.Address.Valid())
	assert.Equal(t, opened.Address, ep.Address())
	return ep, opened.Address
}

func TestEndpointOpenAndReopen(t *testing.T) {
	_, url := startHub(t)
	ep, first := openEndpoint(t, url)

	require.NoError(t, ep.Reopen(context.Background()))
	again := nextEndpointEvent(t, ep, lifecycle.EndpointOpened)
	assert.NotEqual(t, first, again.Address, "reopen registers a fresh address")
}

func TestDialRequiresRegistration(t *testing.T) {
	_, url := startHub(t)
	ep := newTestEndpoint(t, url)
	_, err := ep.Dial(context.Background(), "someone")
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestEndpointsExchangeText(t *testing.T) {
	if testing.Short() {
		t.Skip("negotiates a real WebRTC session")
	}
	_, url := startHub(t)
	a, _ := openEndpoint(t, url)
	b, addrB := openEndpoint(t, url)

	out, err := a.Dial(context.Background(), addrB)
	require.NoError(t, err)
	assert.Equal(t, addrB, out.Peer())

	in := nextEndpointEvent(t, b, lifecycle.EndpointConnection).Conn
	require.NotNil(t, in)
	assert.Equal(t, a.Address(), in.Peer())

	nextConnEvent(t, out, isKind(match.EventOpened))
	nextConnEvent(t, in, isKind(match.EventOpened))

	require.NoError(t, out.Send("hi"))
	got := nextConnEvent(t, in, isKind(match.EventData))
	assert.Equal(t, "hi", got.Payload)

	require.NoError(t, in.Send("hey"))
	got = nextConnEvent(t, out, isKind(match.EventData))
	assert.Equal(t, "hey", got.Payload)

	require.NoError(t, out.Close())
	nextConnEvent(t, in, terminal)
	assert.ErrorIs(t, out.Send("gone"), ErrNotOpen)
}

func TestDialUnknownPeerExpires(t *testing.T) {
	_, url := startHub(t)
	a, _ := openEndpoint(t, url)

	out, err := a.Dial(context.Background(), "nobody-home")
	require.NoError(t, err)
	ev := nextConnEvent(t, out, terminal)
	assert.Equal(t, match.EventErrored, ev.Kind)
	assert.ErrorIs(t, ev.Err, ErrPeerUnavailable)
}

func TestRejectedInboundEndsDial(t *testing.T) {
	if testing.Short() {
		t.Skip("negotiates a real WebRTC session")
	}
	_, url := startHub(t)
	a, _ := openEndpoint(t, url)
	b, addrB := openEndpoint(t, url)

	out, err := a.Dial(context.Background(), addrB)
	require.NoError(t, err)

	in := nextEndpointEvent(t, b, lifecycle.EndpointConnection).Conn
	require.NoError(t, in.Close())

	nextConnEvent(t, out, terminal)
}

func TestEndpointReclaimsAddressAfterDrop(t *testing.T) {
	hub, url := startHub(t)
	ep, addr := openEndpoint(t, url)

	hub.Router().Close()

	nextEndpointEvent(t, ep, lifecycle.EndpointDisconnected)
	again := nextEndpointEvent(t, ep, lifecycle.EndpointOpened)
	assert.Equal(t, addr, again.Address)
}

func TestTakenAddressIsRetryable(t *testing.T) {
	_, url := startHub(t)
	holder, _, err := websocket.DefaultDialer.Dial(url+"?id=taken", nil)
	require.NoError(t, err)
	defer holder.Close()
	_, _, err = holder.ReadMessage()
	require.NoError(t, err)

	ep := newTestEndpoint(t, url)
	require.NoError(t, ep.start(context.Background(), "taken"))

	failed := nextEndpointEvent(t, ep, lifecycle.EndpointFailed)
	assert.True(t, failed.Retryable)
	assert.Contains(t, failed.Err.Error(), realtime.CodeUnavailableID)
}

func TestUnreachableServiceIsFatal(t *testing.T) {
	ep := newTestEndpoint(t, "ws://127.0.0.1:1/api/v1/signal/ws")
	require.NoError(t, ep.Open(context.Background()))

	failed := nextEndpointEvent(t, ep, lifecycle.EndpointFailed)
	assert.False(t, failed.Retryable)
	assert.Contains(t, failed.Err.Error(), "network")
}

func TestClosedEndpointRefusesOpen(t *testing.T) {
	_, url := startHub(t)
	ep := newTestEndpoint(t, url)
	require.NoError(t, ep.Close())
	assert.ErrorIs(t, ep.Open(context.Background()), ErrClosed)
}

func TestICEServers(t *testing.T) {
	servers := ICEServers([]string{"stun:a:3478", " ", "turn:b:3478"})
	require.Len(t, servers, 2)
	assert.Equal(t, []string{"stun:a:3478"}, servers[0].URLs)
	assert.Equal(t, []string{"turn:b:3478"}, servers[1].URLs)
	assert.Empty(t, ICEServers(nil))
}
