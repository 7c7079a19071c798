package realtime

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const defaultReadTimeout = 60 * time.Second

// Hub is the transport address rendezvous service: it registers sockets under
// an address and relays session descriptions between addresses.
type Hub struct {
	router      *Router
	logger      *slog.Logger
	readTimeout time.Duration
	upgrader    websocket.Upgrader
}

func NewHub(router *Router, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		router:      router,
		logger:      logger,
		readTimeout: defaultReadTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Anonymous service; any origin may register.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Hub) Router() *Router { return h.router }

// ServeHTTP upgrades the request and serves the socket until it closes.
// A client reclaiming its address after a drop passes it as ?id=.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requested := r.URL.Query().Get("id")
	if requested != "" && !ValidAddress(requested) {
		http.Error(w, `{"error":"invalid id"}`, http.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the response.
		return
	}
	h.serve(ws, requested)
}

func (h *Hub) serve(ws *websocket.Conn, requested string) {
	addr := requested
	if addr == "" {
		addr = NewAddress()
	}
	conn := NewConnection(addr, ws)

	if err := h.router.Attach(conn); err != nil {
		h.logger.Info("rejecting registration, address in use", "address", addr)
		conn.Start()
		_ = conn.SendFrame(ErrorFrame(CodeUnavailableID, "id "+addr+" is taken"))
		conn.Close(websocket.ClosePolicyViolation, CodeUnavailableID)
		return
	}
	defer func() {
		h.router.Detach(conn)
		conn.Close(websocket.CloseNormalClosure, "session closed")
	}()

	h.logger.Info("signaling socket registered", "address", addr, "reclaimed", requested != "")
	_ = conn.SendFrame(Frame{Type: FrameOpen, ID: addr})

	ws.SetReadLimit(64 << 10)
	_ = ws.SetReadDeadline(time.Now().Add(h.readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) &&
				!errors.Is(err, websocket.ErrCloseSent) {
				h.logger.Debug("signaling socket read ended", "address", addr, "error", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(h.readTimeout))

		frame, err := Decode(data)
		if err != nil {
			_ = conn.SendFrame(ErrorFrame(CodeBadRequest, "invalid frame"))
			continue
		}
		h.dispatch(conn, frame)
	}
}

func (h *Hub) dispatch(conn *Connection, f Frame) {
	switch f.Type {
	case FrameHeartbeat:
	case FrameOffer, FrameAnswer, FrameLeave:
		if f.Dst == "" {
			_ = conn.SendFrame(ErrorFrame(CodeBadRequest, "dst is required"))
			return
		}
		relayed := Frame{Type: f.Type, Dst: f.Dst, Payload: f.Payload}
		if !h.router.Relay(conn.Address, relayed) {
			h.logger.Debug("relay destination unknown", "src", conn.Address, "dst", f.Dst, "type", f.Type)
			_ = conn.SendFrame(Frame{Type: FrameExpire, Src: f.Dst})
		}
	default:
		_ = conn.SendFrame(ErrorFrame(CodeBadRequest, "unsupported frame type"))
	}
}
