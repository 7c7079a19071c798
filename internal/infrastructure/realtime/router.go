package realtime

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var ErrAddressTaken = errors.New("realtime: address already registered")

// Router maps transport addresses to their live signaling connection. An address
// is held by at most one connection at a time.
type Router struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

func NewRouter() *Router {
	return &Router{conns: make(map[string]*Connection)}
}

// NewAddress issues a fresh transport address.
func NewAddress() string {
	return uuid.NewString()
}

// ValidAddress reports whether a client-requested address is acceptable.
func ValidAddress(addr string) bool {
	if addr == "" || len(addr) > 64 || strings.TrimSpace(addr) != addr {
		return false
	}
	for _, r := range addr {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// Attach registers conn under its address and starts its write loop.
// It fails with ErrAddressTaken while another connection holds the address.
func (r *Router) Attach(conn *Connection) error {
	r.mu.Lock()
	if _, taken := r.conns[conn.Address]; taken {
		r.mu.Unlock()
		return ErrAddressTaken
	}
	r.conns[conn.Address] = conn
	r.mu.Unlock()

	conn.Start()
	return nil
}

// Detach removes conn if it still owns its address.
func (r *Router) Detach(conn *Connection) {
	r.mu.Lock()
	if current, ok := r.conns[conn.Address]; ok && current == conn {
		delete(r.conns, conn.Address)
	}
	r.mu.Unlock()
}

// Relay stamps f with src and delivers it to f.Dst. It reports false when the
// destination is not registered or its buffer is full.
func (r *Router) Relay(src string, f Frame) bool {
	r.mu.RLock()
	dst := r.conns[f.Dst]
	r.mu.RUnlock()
	if dst == nil {
		return false
	}
	f.Src = src
	return dst.SendFrame(f) == nil
}

// Registered reports whether addr currently has a connection.
func (r *Router) Registered(addr string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[addr]
	return ok
}

func (r *Router) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Close terminates every tracked connection.
func (r *Router) Close() {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[string]*Connection)
	r.mu.Unlock()

	for _, c := range conns {
		c.Close(1001, "hub shutdown")
	}
}
