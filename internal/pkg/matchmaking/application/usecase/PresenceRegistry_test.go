package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	match "go-stranger/internal/pkg/matchmaking/application/domain"
	"go-stranger/internal/pkg/matchmaking/persistence/repository/adapter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceRegistryHeartbeatInterval(t *testing.T) {
	registry := NewPresenceRegistry(adapter.NewMemoryPresenceRepository(), 10*time.Second)
	assert.Equal(t, 5*time.Second, registry.HeartbeatInterval())
	assert.Less(t, registry.HeartbeatInterval(), registry.Threshold())
}

func TestRefreshPresenceIsIdempotentUpsert(t *testing.T) {
	ctx := context.Background()
	repo := adapter.NewMemoryPresenceRepository()
	clock := &manualClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	registry := NewPresenceRegistry(repo, 10*time.Second, WithPresenceClock(clock.Now), WithPresenceLogger(discardLogger()))
	defer registry.Stop()

	require.NoError(t, registry.RefreshPresence(ctx, "user_a", "addr-1"))
	clock.Advance(time.Second)
	require.NoError(t, registry.RefreshPresence(ctx, "user_a", "addr-2"))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "one record per identity")

	rec, ok := repo.Get("user_a")
	require.True(t, ok)
	assert.Equal(t, match.TransportAddress("addr-2"), rec.Address)
	assert.Equal(t, clock.Now(), rec.LastSeen)
}

func TestRefreshPresenceRejectsEmptyIdentity(t *testing.T) {
	registry := NewPresenceRegistry(adapter.NewMemoryPresenceRepository(), time.Second)
	err := registry.RefreshPresence(context.Background(), " ", "addr")
	assert.ErrorIs(t, err, match.ErrInvalidIdentity)
}

func TestHeartbeatRefreshesAndRecreatesRecord(t *testing.T) {
	ctx := context.Background()
	repo := adapter.NewMemoryPresenceRepository()
	registry := NewPresenceRegistry(repo, 40*time.Millisecond, WithPresenceLogger(discardLogger()))
	defer registry.Stop()

	require.NoError(t, registry.RefreshPresence(ctx, "user_a", "addr-1"))
	first, ok := repo.Get("user_a")
	require.True(t, ok)

	// A sweep that removed the record during a stall is repaired by the next beat.
	_, err := repo.Delete(ctx, "user_a")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		rec, ok := repo.Get("user_a")
		return ok && rec.LastSeen.After(first.LastSeen)
	}, time.Second, 5*time.Millisecond)
}

func TestSweepStaleRemovesOnlyStaleRecords(t *testing.T) {
	ctx := context.Background()
	repo := adapter.NewMemoryPresenceRepository()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	threshold := 10 * time.Second
	registry := NewPresenceRegistry(repo, threshold, WithPresenceLogger(discardLogger()))

	records := map[match.Identity]time.Duration{
		"fresh":      time.Second,
		"boundary":   threshold,
		"stale":      threshold + time.Millisecond,
		"very_stale": time.Hour,
	}
	for id, age := range records {
		require.NoError(t, repo.Upsert(ctx, match.PresenceRecord{Identity: id, LastSeen: now.Add(-age)}))
	}

	removed, err := registry.SweepStale(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	for id, age := range records {
		rec := match.PresenceRecord{Identity: id, LastSeen: now.Add(-age)}
		_, ok := repo.Get(id)
		assert.Equal(t, !rec.IsStale(now, threshold), ok, "record %s", id)
	}
}

func TestCountActiveSweepsFirst(t *testing.T) {
	ctx := context.Background()
	repo := adapter.NewMemoryPresenceRepository()
	clock := &manualClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	registry := NewPresenceRegistry(repo, 10*time.Second, WithPresenceClock(clock.Now), WithPresenceLogger(discardLogger()))

	require.NoError(t, repo.Upsert(ctx, match.PresenceRecord{Identity: "alive", LastSeen: clock.Now()}))
	require.NoError(t, repo.Upsert(ctx, match.PresenceRecord{Identity: "dead", LastSeen: clock.Now().Add(-time.Minute)}))

	n, err := registry.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRemovePresenceStopsHeartbeat(t *testing.T) {
	ctx := context.Background()
	repo := adapter.NewMemoryPresenceRepository()
	registry := NewPresenceRegistry(repo, 20*time.Millisecond, WithPresenceLogger(discardLogger()))

	require.NoError(t, registry.RefreshPresence(ctx, "user_a", "addr"))
	require.NoError(t, registry.RemovePresence(ctx, "user_a"))

	time.Sleep(60 * time.Millisecond)
	_, ok := repo.Get("user_a")
	assert.False(t, ok, "no heartbeat may resurrect a departed participant")

	// Removing again is harmless.
	assert.NoError(t, registry.RemovePresence(ctx, "user_a"))
}

func TestPresenceFailuresAreReturnedNotPanicked(t *testing.T) {
	ctx := context.Background()
	registry := NewPresenceRegistry(failingPresence{}, time.Second, WithPresenceLogger(discardLogger()))
	defer registry.Stop()

	assert.True(t, errors.Is(registry.RefreshPresence(ctx, "user_a", "addr"), ErrPersistence))
	_, err := registry.CountActive(ctx)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, registry.RemovePresence(ctx, "user_a"), ErrPersistence)
}
