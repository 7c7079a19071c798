package lifecycle

import (
	"time"

	match "go-stranger/internal/pkg/matchmaking/application/domain"
)

// Config holds the session timeouts.
type Config struct {
	OpenTimeout          time.Duration // own address acquisition
	DialDelay            time.Duration // pause between a won claim and dialing
	DialTimeout          time.Duration // outbound session must open within this window
	AwaitIncomingTimeout time.Duration // claimed side waits this long for the winner
	ReconnectDelay       time.Duration // pause before reopening after an address conflict
	CountInterval        time.Duration // online count refresh
}

func DefaultConfig() Config {
	return Config{
		OpenTimeout:          10 * time.Second,
		DialDelay:            500 * time.Millisecond,
		DialTimeout:          10 * time.Second,
		AwaitIncomingTimeout: 15 * time.Second,
		ReconnectDelay:       2 * time.Second,
		CountInterval:        5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = d.OpenTimeout
	}
	if c.DialDelay < 0 {
		c.DialDelay = 0
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.AwaitIncomingTimeout <= 0 {
		c.AwaitIncomingTimeout = d.AwaitIncomingTimeout
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = d.ReconnectDelay
	}
	if c.CountInterval <= 0 {
		c.CountInterval = d.CountInterval
	}
	return c
}

// Hooks let a front end render the session. They run on the session's goroutines
// and must not call back into the Session synchronously.
type Hooks struct {
	OnEntry func(match.Entry)
	OnPhase func(match.Phase)
	OnCount func(int64)
}
