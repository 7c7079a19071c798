package match

import (
	"strings"
	"time"
)

// Identity is the self-asserted, locally persisted id of one participant.
// It is stable across reloads of the same client and never authenticated.
type Identity string

// TransportAddress is the opaque endpoint id issued by the rendezvous service.
// It may change across reconnects of the signaling link.
type TransportAddress string

// Valid reports whether id carries a non-blank value.
func (id Identity) Valid() bool {
	return strings.TrimSpace(string(id)) != ""
}

// Valid reports whether addr carries a non-blank value.
func (addr TransportAddress) Valid() bool {
	return strings.TrimSpace(string(addr)) != ""
}

// PresenceRecord is one heartbeat-backed row of the presence registry.
// Primary key: Identity
type PresenceRecord struct {
	Identity Identity         `db:"user_id"`
	Address  TransportAddress `db:"transport_address"` // empty when not yet known
	LastSeen time.Time        `db:"last_seen"`
}

// IsStale reports whether the heartbeat age exceeds threshold at now.
// A record exactly threshold old is still alive.
func (p PresenceRecord) IsStale(now time.Time, threshold time.Duration) bool {
	return now.Sub(p.LastSeen) > threshold
}

// WaitingEntry is a participant currently seeking a match.
// Primary key: Address
type WaitingEntry struct {
	Address   TransportAddress `db:"transport_address"`
	CreatedAt time.Time        `db:"created_at"`
}
