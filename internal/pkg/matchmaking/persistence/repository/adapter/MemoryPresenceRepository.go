package adapter

import (
	"context"
	"sync"
	"time"

	match "go-stranger/internal/pkg/matchmaking/application/domain"
	repository "go-stranger/internal/pkg/matchmaking/persistence/repository/port"
)

// MemoryPresenceRepository is an in-process presence store for tests and single-process runs.
type MemoryPresenceRepository struct {
	mu      sync.Mutex
	records map[match.Identity]match.PresenceRecord
}

var _ repository.PresenceRepository = (*MemoryPresenceRepository)(nil)

func NewMemoryPresenceRepository() *MemoryPresenceRepository {
	return &MemoryPresenceRepository{records: make(map[match.Identity]match.PresenceRecord)}
}

func (r *MemoryPresenceRepository) Upsert(_ context.Context, rec match.PresenceRecord) error {
	r.mu.Lock()
	r.records[rec.Identity] = rec
	r.mu.Unlock()
	return nil
}

func (r *MemoryPresenceRepository) Delete(_ context.Context, id match.Identity) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return 0, nil
	}
	delete(r.records, id)
	return 1, nil
}

func (r *MemoryPresenceRepository) DeleteSeenBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for id, rec := range r.records {
		if rec.LastSeen.Before(cutoff) {
			delete(r.records, id)
			removed++
		}
	}
	return removed, nil
}

func (r *MemoryPresenceRepository) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.records)), nil
}

// Get returns a copy of the record for id.
func (r *MemoryPresenceRepository) Get(id match.Identity) (match.PresenceRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	return rec, ok
}
