package port

import (
	"context"
	"errors"
	"time"
)

// Cache is a small string key/value cache with per-key TTL. Implementations are
// safe for concurrent use and honour ctx cancellation where the backend allows.
type Cache interface {
	// Get returns ErrMiss when key is absent or expired.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key. A ttl <= 0 keeps the value until deleted.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// Del removes keys and reports how many existed.
	Del(ctx context.Context, keys ...string) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// ErrMiss signals a cache miss, as opposed to a backend failure.
var ErrMiss = errors.New("cache: miss")
