package peer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go-stranger/internal/infrastructure/realtime"

	"github.com/gorilla/websocket"
)

const (
	signalWriteWait   = 10 * time.Second
	heartbeatInterval = 20 * time.Second
)

var errLinkClosed = errors.New("peer: signaling link closed")

// signalLink is the client side of one rendezvous socket.
type signalLink struct {
	ws     *websocket.Conn
	frames chan realtime.Frame

	writeMu sync.Mutex
	once    sync.Once
	closed  chan struct{}
}

// dialSignal connects to base, asking to reclaim id when it is non-empty.
func dialSignal(ctx context.Context, base, id string) (*signalLink, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("peer: signal url: %w", err)
	}
	if id != "" {
		q := u.Query()
		q.Set("id", id)
		u.RawQuery = q.Encode()
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("peer: dial signaling: %w", err)
	}

	l := &signalLink{
		ws:     ws,
		frames: make(chan realtime.Frame, 32),
		closed: make(chan struct{}),
	}
	go l.readLoop()
	go l.heartbeat()
	return l, nil
}

// readLoop closes frames when the socket fails or is closed.
func (l *signalLink) readLoop() {
	defer close(l.frames)
	for {
		_, data, err := l.ws.ReadMessage()
		if err != nil {
			return
		}
		f, err := realtime.Decode(data)
		if err != nil {
			continue
		}
		select {
		case l.frames <- f:
		case <-l.closed:
			return
		}
	}
}

func (l *signalLink) heartbeat() {
	t := time.NewTicker(heartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-l.closed:
			return
		case <-t.C:
			if err := l.send(realtime.Frame{Type: realtime.FrameHeartbeat}); err != nil {
				return
			}
		}
	}
}

func (l *signalLink) send(f realtime.Frame) error {
	select {
	case <-l.closed:
		return errLinkClosed
	default:
	}
	data, err := realtime.Encode(f)
	if err != nil {
		return err
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := l.ws.SetWriteDeadline(time.Now().Add(signalWriteWait)); err != nil {
		return err
	}
	return l.ws.WriteMessage(websocket.TextMessage, data)
}

func (l *signalLink) close() {
	l.once.Do(func() {
		close(l.closed)
		_ = l.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = l.ws.Close()
	})
}
