package peer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go-stranger/internal/infrastructure/realtime"
	match "go-stranger/internal/pkg/matchmaking/application/domain"
	"go-stranger/internal/pkg/matchmaking/application/lifecycle"

	"github.com/pion/webrtc/v4"
)

const chatLabel = "chat"

var (
	ErrNotRegistered = errors.New("peer: not registered with the rendezvous service")
	ErrClosed        = errors.New("peer: endpoint closed")
)

// Config describes where to register and how to reach peers.
type Config struct {
	SignalURL  string
	ICEServers []webrtc.ICEServer
	// Loopback includes loopback ICE candidates (same-host peers, tests).
	Loopback bool
	// GatherTimeout bounds vanilla ICE gathering before an SDP is sent.
	GatherTimeout time.Duration
	// RetryDelay is the pause between attempts to re-register after a drop.
	RetryDelay time.Duration
	// MaxRetries bounds re-registration attempts before the drop becomes fatal.
	MaxRetries int
}

func (c Config) withDefaults() Config {
	if c.GatherTimeout <= 0 {
		c.GatherTimeout = 5 * time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 10
	}
	return c
}

// Endpoint is the local transport endpoint: a rendezvous registration plus the
// WebRTC sessions negotiated through it. SDPs are exchanged complete (vanilla
// ICE), so one offer/answer round trip establishes a session.
type Endpoint struct {
	cfg    Config
	api    *webrtc.API
	logger *slog.Logger
	events chan lifecycle.EndpointEvent
	done   chan struct{}

	mu       sync.Mutex
	closed   bool
	link     *signalLink
	address  match.TransportAddress
	pending  map[match.TransportAddress]*dataConn
	inbound  map[match.TransportAddress]*dataConn
	stopRun  context.CancelFunc
	runDone  chan struct{}
	closeAll sync.Once
}

var _ lifecycle.Endpoint = (*Endpoint)(nil)

func NewEndpoint(cfg Config, logger *slog.Logger) *Endpoint {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Endpoint{
		cfg:     cfg,
		api:     newAPI(cfg.Loopback),
		logger:  logger,
		events:  make(chan lifecycle.EndpointEvent, 32),
		done:    make(chan struct{}),
		pending: make(map[match.TransportAddress]*dataConn),
		inbound: make(map[match.TransportAddress]*dataConn),
	}
}

func (e *Endpoint) Events() <-chan lifecycle.EndpointEvent { return e.events }

// Address is the current registration, empty while unregistered.
func (e *Endpoint) Address() match.TransportAddress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.address
}

// Open registers under a fresh address. EndpointOpened follows asynchronously.
func (e *Endpoint) Open(ctx context.Context) error {
	return e.start(ctx, "")
}

// Reopen drops the registration and registers again under a fresh address.
func (e *Endpoint) Reopen(ctx context.Context) error {
	e.stop()
	e.mu.Lock()
	e.address = ""
	e.mu.Unlock()
	return e.start(ctx, "")
}

func (e *Endpoint) start(ctx context.Context, reclaim string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.stopRun != nil {
		return errors.New("peer: endpoint already open")
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.stopRun = cancel
	e.runDone = make(chan struct{})
	go e.run(runCtx, reclaim, e.runDone)
	return nil
}

func (e *Endpoint) stop() {
	e.mu.Lock()
	cancel, done, link := e.stopRun, e.runDone, e.link
	e.stopRun, e.runDone = nil, nil
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if link != nil {
		link.close()
	}
	<-done
}

// run keeps one registration alive: it re-registers under the same address after
// a drop and gives up after MaxRetries consecutive failures.
func (e *Endpoint) run(ctx context.Context, reclaim string, done chan struct{}) {
	defer close(done)

	id := reclaim
	failures := 0
	for {
		link, err := dialSignal(ctx, e.cfg.SignalURL, id)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			if id == "" || failures > e.cfg.MaxRetries {
				e.logger.Error("rendezvous service unreachable", "error", err, "attempts", failures)
				e.emit(lifecycle.EndpointEvent{Kind: lifecycle.EndpointFailed, Err: fmt.Errorf("network: %w", err)})
				return
			}
			if !sleepCtx(ctx, e.cfg.RetryDelay) {
				return
			}
			continue
		}

		e.setLink(link)
		dropped, registered := e.serve(ctx, link)
		e.setLink(nil)
		link.close()

		if ctx.Err() != nil || !dropped {
			return
		}
		if registered {
			failures = 0
		}
		id = string(e.Address())
		e.logger.Warn("rendezvous link dropped, re-registering", "address", id)
		e.emit(lifecycle.EndpointEvent{Kind: lifecycle.EndpointDisconnected})
		if !sleepCtx(ctx, e.cfg.RetryDelay) {
			return
		}
	}
}

// serve handles frames until the link drops (dropped = true) or the service
// rejects the registration (dropped = false).
func (e *Endpoint) serve(ctx context.Context, link *signalLink) (dropped, registered bool) {
	for {
		select {
		case <-ctx.Done():
			return false, registered
		case f, ok := <-link.frames:
			if !ok {
				return true, registered
			}
			remote := match.TransportAddress(f.Src)
			switch f.Type {
			case realtime.FrameOpen:
				registered = true
				addr := match.TransportAddress(f.ID)
				e.mu.Lock()
				e.address = addr
				e.mu.Unlock()
				e.emit(lifecycle.EndpointEvent{Kind: lifecycle.EndpointOpened, Address: addr})

			case realtime.FrameOffer:
				go e.answer(ctx, link, f)

			case realtime.FrameAnswer:
				e.completeDial(f)

			case realtime.FrameExpire:
				if c := e.lookup(e.pending, remote); c != nil {
					c.abort(ErrPeerUnavailable)
				}

			case realtime.FrameLeave:
				if c := e.lookup(e.pending, remote); c != nil {
					c.abort(ErrPeerLeft)
				}
				if c := e.lookup(e.inbound, remote); c != nil {
					c.abort(ErrPeerLeft)
				}

			case realtime.FrameError:
				if f.Code == realtime.CodeBadRequest {
					e.logger.Warn("signaling frame rejected", "error", f.Error)
					continue
				}
				retryable := f.Code == realtime.CodeUnavailableID || f.Code == realtime.CodeInvalidID
				e.logger.Warn("rendezvous registration failed", "code", f.Code, "error", f.Error)
				e.emit(lifecycle.EndpointEvent{
					Kind:      lifecycle.EndpointFailed,
					Err:       fmt.Errorf("%s: %s", f.Code, f.Error),
					Retryable: retryable,
				})
				return false, registered
			}
		}
	}
}

// Dial starts an outbound session to remote. The returned Conn emits EventOpened
// once the data channel opens; expiry or a failed negotiation emit EventErrored.
func (e *Endpoint) Dial(ctx context.Context, remote match.TransportAddress) (lifecycle.Conn, error) {
	e.mu.Lock()
	link := e.link
	e.mu.Unlock()
	if link == nil {
		return nil, ErrNotRegistered
	}

	pc, err := e.api.NewPeerConnection(webrtc.Configuration{ICEServers: e.cfg.ICEServers})
	if err != nil {
		return nil, fmt.Errorf("peer: new peer connection: %w", err)
	}
	conn := newDataConn(remote, pc)
	e.track(e.pending, link, conn)

	ordered := true
	dc, err := pc.CreateDataChannel(chatLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		conn.abort(err)
		return nil, fmt.Errorf("peer: create data channel: %w", err)
	}
	conn.attach(dc)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		conn.abort(err)
		return nil, fmt.Errorf("peer: create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		conn.abort(err)
		return nil, fmt.Errorf("peer: set local description: %w", err)
	}

	go func() {
		if err := e.waitGathered(ctx, gathered); err != nil {
			conn.abort(err)
			return
		}
		frame, err := realtime.SDPFrame(realtime.FrameOffer, string(remote), pc.LocalDescription().SDP)
		if err == nil {
			err = link.send(frame)
		}
		if err != nil {
			conn.abort(fmt.Errorf("peer: send offer: %w", err))
			return
		}
		e.logger.Info("offer sent", "peer", remote)
	}()
	return conn, nil
}

func (e *Endpoint) completeDial(f realtime.Frame) {
	remote := match.TransportAddress(f.Src)
	conn := e.lookup(e.pending, remote)
	if conn == nil || conn.pc.RemoteDescription() != nil {
		return
	}
	sdp, err := f.SDP()
	if err == nil {
		err = conn.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
	}
	if err != nil {
		e.logger.Warn("bad answer", "peer", remote, "error", err)
		conn.fail(err)
		return
	}
	e.logger.Info("answer applied", "peer", remote)
}

// answer accepts an inbound offer and hands the session to the owner.
func (e *Endpoint) answer(ctx context.Context, link *signalLink, f realtime.Frame) {
	remote := match.TransportAddress(f.Src)
	sdp, err := f.SDP()
	if err != nil {
		e.logger.Warn("bad offer", "peer", remote, "error", err)
		return
	}

	pc, err := e.api.NewPeerConnection(webrtc.Configuration{ICEServers: e.cfg.ICEServers})
	if err != nil {
		e.logger.Error("creating peer connection failed", "error", err)
		return
	}
	conn := newDataConn(remote, pc)
	e.track(e.inbound, link, conn)
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() == chatLabel {
			conn.attach(dc)
		}
	})

	fail := func(err error) {
		e.logger.Warn("answering offer failed", "peer", remote, "error", err)
		_ = conn.Close()
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		fail(err)
		return
	}
	ans, err := pc.CreateAnswer(nil)
	if err != nil {
		fail(err)
		return
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(ans); err != nil {
		fail(err)
		return
	}
	if err := e.waitGathered(ctx, gathered); err != nil {
		fail(err)
		return
	}

	frame, err := realtime.SDPFrame(realtime.FrameAnswer, string(remote), pc.LocalDescription().SDP)
	if err == nil {
		err = link.send(frame)
	}
	if err != nil {
		fail(err)
		return
	}

	e.logger.Info("answered inbound offer", "peer", remote)
	e.emit(lifecycle.EndpointEvent{Kind: lifecycle.EndpointConnection, Conn: conn})
}

// track files conn under its remote until it opens or ends. Closing it before it
// opens tells the remote to stop waiting.
func (e *Endpoint) track(set map[match.TransportAddress]*dataConn, link *signalLink, conn *dataConn) {
	remote := conn.peer
	conn.mu.Lock()
	conn.onSettle = func() {
		e.mu.Lock()
		if set[remote] == conn {
			delete(set, remote)
		}
		e.mu.Unlock()
	}
	conn.onAbandon = func() {
		_ = link.send(realtime.Frame{Type: realtime.FrameLeave, Dst: string(remote)})
	}
	conn.mu.Unlock()

	e.mu.Lock()
	previous := set[remote]
	set[remote] = conn
	e.mu.Unlock()
	if previous != nil {
		go previous.abort(ErrPeerLeft)
	}
}

func (e *Endpoint) lookup(set map[match.TransportAddress]*dataConn, remote match.TransportAddress) *dataConn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return set[remote]
}

func (e *Endpoint) waitGathered(ctx context.Context, gathered <-chan struct{}) error {
	t := time.NewTimer(e.cfg.GatherTimeout)
	defer t.Stop()
	select {
	case <-gathered:
		return nil
	case <-t.C:
		return fmt.Errorf("peer: ice gathering timed out after %s", e.cfg.GatherTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Endpoint) setLink(l *signalLink) {
	e.mu.Lock()
	e.link = l
	e.mu.Unlock()
}

func (e *Endpoint) emit(ev lifecycle.EndpointEvent) {
	select {
	case e.events <- ev:
	case <-e.done:
		if ev.Conn != nil {
			_ = ev.Conn.Close()
		}
	}
}

// Close unregisters and aborts pending dials. Sessions already handed out stay
// with their owner.
func (e *Endpoint) Close() error {
	e.closeAll.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()
		close(e.done)
		e.stop()

		e.mu.Lock()
		var pending []*dataConn
		for _, c := range e.pending {
			pending = append(pending, c)
		}
		e.mu.Unlock()
		for _, c := range pending {
			c.abort(ErrClosed)
		}
	})
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
