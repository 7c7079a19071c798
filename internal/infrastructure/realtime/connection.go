package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var (
	ErrConnectionClosed = errors.New("realtime: connection closed")
	ErrBufferExceeded   = errors.New("realtime: connection buffer exceeded")
)

// Connection is one registered signaling socket. Writes go through a buffered
// channel drained by a single write loop, so Send is safe for concurrent use.
type Connection struct {
	Address string

	ws     *websocket.Conn
	send   chan []byte
	once   sync.Once
	close  chan struct{}
	code   int
	reason string
}

func NewConnection(address string, ws *websocket.Conn) *Connection {
	return &Connection{
		Address: address,
		ws:      ws,
		send:    make(chan []byte, 64),
		close:   make(chan struct{}),
	}
}

// Start launches the write loop. Call it exactly once.
func (c *Connection) Start() {
	go c.writeLoop()
}

// Send enqueues payload. A slow client whose buffer fills up is disconnected.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.close:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		c.Close(websocket.CloseGoingAway, "send buffer full")
		return ErrBufferExceeded
	}
}

// SendFrame encodes and enqueues f.
func (c *Connection) SendFrame(f Frame) error {
	payload, err := Encode(f)
	if err != nil {
		return err
	}
	return c.Send(payload)
}

// Close stops the connection. The write loop flushes frames already queued,
// sends a close frame and drops the socket.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		c.code, c.reason = code, reason
		close(c.close)
	})
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.ws.Close()

	for {
		select {
		case <-c.close:
			c.drain()
			deadline := time.Now().Add(writeWait)
			_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(c.code, c.reason), deadline)
			return
		case msg := <-c.send:
			if err := c.writeMessage(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.writePing(); err != nil {
				return
			}
		}
	}
}

func (c *Connection) drain() {
	for {
		select {
		case msg := <-c.send:
			if err := c.writeMessage(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Connection) writeMessage(payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *Connection) writePing() error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}
