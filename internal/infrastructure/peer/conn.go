package peer

import (
	"errors"
	"sync"

	match "go-stranger/internal/pkg/matchmaking/application/domain"

	"github.com/pion/webrtc/v4"
)

var (
	ErrNotOpen         = errors.New("peer: data channel is not open")
	ErrICEFailed       = errors.New("peer: ice connection failed")
	ErrPeerUnavailable = errors.New("peer: remote address is not registered")
	ErrPeerLeft        = errors.New("peer: remote abandoned the negotiation")
)

// dataConn is one direct chat session over a single ordered data channel.
type dataConn struct {
	peer   match.TransportAddress
	pc     *webrtc.PeerConnection
	events chan match.Event

	mu       sync.Mutex
	dc       *webrtc.DataChannel
	open     bool
	opened   bool
	finished bool

	// onSettle runs once when the session opens or ends; onAbandon runs when
	// it is closed locally before it ever opened.
	settleOnce sync.Once
	onSettle   func()
	onAbandon  func()

	closeOnce sync.Once
	closed    chan struct{}
}

func newDataConn(peer match.TransportAddress, pc *webrtc.PeerConnection) *dataConn {
	c := &dataConn{
		peer:   peer,
		pc:     pc,
		events: make(chan match.Event, 64),
		closed: make(chan struct{}),
	}
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed:
			c.finish(match.Event{Kind: match.EventErrored, Err: ErrICEFailed})
		case webrtc.PeerConnectionStateClosed:
			c.finish(match.Event{Kind: match.EventClosed})
		}
	})
	return c
}

// attach wires the chat data channel. The dialer creates it; the answerer
// receives it through OnDataChannel.
func (c *dataConn) attach(dc *webrtc.DataChannel) {
	c.mu.Lock()
	c.dc = dc
	c.mu.Unlock()

	dc.OnOpen(func() {
		c.mu.Lock()
		if c.finished {
			c.mu.Unlock()
			return
		}
		c.open = true
		c.opened = true
		c.mu.Unlock()
		c.settle()
		c.emit(match.Event{Kind: match.EventOpened})
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.mu.Lock()
		done := c.finished
		c.mu.Unlock()
		if !done {
			c.emit(match.Event{Kind: match.EventData, Payload: string(msg.Data)})
		}
	})
	dc.OnClose(func() {
		c.finish(match.Event{Kind: match.EventClosed})
	})
	dc.OnError(func(err error) {
		c.finish(match.Event{Kind: match.EventErrored, Err: err})
	})
}

func (c *dataConn) Peer() match.TransportAddress { return c.peer }

func (c *dataConn) Events() <-chan match.Event { return c.events }

func (c *dataConn) Send(payload string) error {
	select {
	case <-c.closed:
		return ErrNotOpen
	default:
	}
	c.mu.Lock()
	dc, open := c.dc, c.open && !c.finished
	c.mu.Unlock()
	if !open || dc == nil {
		return ErrNotOpen
	}
	return dc.SendText(payload)
}

// Close tears the session down. The remote side observes its channel closing.
func (c *dataConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		abandon := c.onAbandon
		if c.opened {
			abandon = nil
		}
		c.mu.Unlock()
		if abandon != nil {
			abandon()
		}
		err = c.pc.Close()
		c.settle()
	})
	return err
}

// abort ends a negotiation the remote side already knows is over; nothing is sent back.
func (c *dataConn) abort(err error) {
	c.mu.Lock()
	c.onAbandon = nil
	c.mu.Unlock()
	c.fail(err)
}

func (c *dataConn) settle() {
	c.settleOnce.Do(func() {
		c.mu.Lock()
		fn := c.onSettle
		c.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
}

// fail ends the session with err and releases it.
func (c *dataConn) fail(err error) {
	c.finish(match.Event{Kind: match.EventErrored, Err: err})
	_ = c.Close()
}

// finish emits the single terminal event.
func (c *dataConn) finish(ev match.Event) {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return
	}
	c.finished = true
	c.open = false
	c.mu.Unlock()
	c.settle()
	c.emit(ev)
}

// emit blocks until the owner reads the event or closes the conn.
func (c *dataConn) emit(ev match.Event) {
	select {
	case c.events <- ev:
	case <-c.closed:
	}
}
