package match

import "errors"

// Domain-level errors for matchmaking and session behaviors
var (
	ErrInvalidIdentity   = errors.New("match: identity is empty")
	ErrAddressNotReady   = errors.New("match: own transport address is not established")
	ErrAlreadySearching  = errors.New("match: a search is already running")
	ErrNotReady          = errors.New("match: session is not ready")
	ErrSessionActive     = errors.New("match: a chat session is still active")
	ErrNotConnected      = errors.New("match: no open chat session")
	ErrEmptyMessage      = errors.New("match: empty message")
	ErrSessionTerminated = errors.New("match: session has stopped")
)
