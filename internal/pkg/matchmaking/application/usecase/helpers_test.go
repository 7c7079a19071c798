package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	match "go-stranger/internal/pkg/matchmaking/application/domain"
	"go-stranger/internal/pkg/matchmaking/persistence/repository/adapter"
)

var errStoreDown = errors.New("store unavailable")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// flakyPool wraps the memory pool and fails selected operations on demand.
type flakyPool struct {
	*adapter.MemoryWaitingPoolRepository

	mu         sync.Mutex
	failInsert int
	failClaim  int
	failExists bool
	claims     int
}

func newFlakyPool() *flakyPool {
	return &flakyPool{MemoryWaitingPoolRepository: adapter.NewMemoryWaitingPoolRepository()}
}

func (f *flakyPool) Insert(ctx context.Context, e match.WaitingEntry) error {
	f.mu.Lock()
	if f.failInsert > 0 {
		f.failInsert--
		f.mu.Unlock()
		return errStoreDown
	}
	f.mu.Unlock()
	return f.MemoryWaitingPoolRepository.Insert(ctx, e)
}

func (f *flakyPool) Exists(ctx context.Context, addr match.TransportAddress) (bool, error) {
	f.mu.Lock()
	fail := f.failExists
	f.mu.Unlock()
	if fail {
		return false, errStoreDown
	}
	return f.MemoryWaitingPoolRepository.Exists(ctx, addr)
}

func (f *flakyPool) DeletePair(ctx context.Context, a, b match.TransportAddress) (int64, error) {
	f.mu.Lock()
	f.claims++
	if f.failClaim > 0 {
		f.failClaim--
		f.mu.Unlock()
		return 0, errStoreDown
	}
	f.mu.Unlock()
	return f.MemoryWaitingPoolRepository.DeletePair(ctx, a, b)
}

func (f *flakyPool) claimCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claims
}

// failingPresence fails every call.
type failingPresence struct{}

func (failingPresence) Upsert(context.Context, match.PresenceRecord) error { return errStoreDown }
func (failingPresence) Delete(context.Context, match.Identity) (int64, error) {
	return 0, errStoreDown
}
func (failingPresence) DeleteSeenBefore(context.Context, time.Time) (int64, error) {
	return 0, errStoreDown
}
func (failingPresence) Count(context.Context) (int64, error) { return 0, errStoreDown }

// manualClock is a settable clock.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func waitOutcome(ch <-chan Outcome, timeout time.Duration) (Outcome, bool) {
	select {
	case o := <-ch:
		return o, true
	case <-time.After(timeout):
		return Outcome{}, false
	}
}
