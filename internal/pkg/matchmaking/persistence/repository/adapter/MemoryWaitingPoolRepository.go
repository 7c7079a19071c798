package adapter

import (
	"context"
	"sync"
	"time"

	match "go-stranger/internal/pkg/matchmaking/application/domain"
	repository "go-stranger/internal/pkg/matchmaking/persistence/repository/port"
)

// MemoryWaitingPoolRepository is an in-process waiting pool. Every method runs in one
// critical section, which gives DeletePair the same all-or-nothing behavior as the
// Postgres adapter.
type MemoryWaitingPoolRepository struct {
	mu      sync.Mutex
	entries map[match.TransportAddress]time.Time
}

var _ repository.WaitingPoolRepository = (*MemoryWaitingPoolRepository)(nil)

func NewMemoryWaitingPoolRepository() *MemoryWaitingPoolRepository {
	return &MemoryWaitingPoolRepository{entries: make(map[match.TransportAddress]time.Time)}
}

func (r *MemoryWaitingPoolRepository) Insert(_ context.Context, e match.WaitingEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[e.Address]; ok {
		return repository.ErrDuplicate
	}
	r.entries[e.Address] = e.CreatedAt
	return nil
}

func (r *MemoryWaitingPoolRepository) Delete(_ context.Context, addr match.TransportAddress) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[addr]; !ok {
		return 0, nil
	}
	delete(r.entries, addr)
	return 1, nil
}

func (r *MemoryWaitingPoolRepository) Exists(_ context.Context, addr match.TransportAddress) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[addr]
	return ok, nil
}

func (r *MemoryWaitingPoolRepository) OldestExcluding(_ context.Context, addr match.TransportAddress) (*match.WaitingEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var oldest *match.WaitingEntry
	for a, createdAt := range r.entries {
		if a == addr {
			continue
		}
		if oldest == nil || createdAt.Before(oldest.CreatedAt) ||
			(createdAt.Equal(oldest.CreatedAt) && a < oldest.Address) {
			oldest = &match.WaitingEntry{Address: a, CreatedAt: createdAt}
		}
	}
	return oldest, nil
}

func (r *MemoryWaitingPoolRepository) DeletePair(_ context.Context, a, b match.TransportAddress) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a == b {
		return 0, nil
	}
	_, okA := r.entries[a]
	_, okB := r.entries[b]
	if !okA || !okB {
		return 0, nil
	}
	delete(r.entries, a)
	delete(r.entries, b)
	return 2, nil
}

func (r *MemoryWaitingPoolRepository) DeleteCreatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for a, createdAt := range r.entries {
		if createdAt.Before(cutoff) {
			delete(r.entries, a)
			removed++
		}
	}
	return removed, nil
}

func (r *MemoryWaitingPoolRepository) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.entries)), nil
}
