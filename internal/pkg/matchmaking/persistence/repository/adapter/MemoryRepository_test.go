package adapter

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	match "go-stranger/internal/pkg/matchmaking/application/domain"
	repository "go-stranger/internal/pkg/matchmaking/persistence/repository/port"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryWaitingPoolRejectsDuplicateAddress(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryWaitingPoolRepository()
	now := time.Now()

	require.NoError(t, repo.Insert(ctx, match.WaitingEntry{Address: "a", CreatedAt: now}))
	err := repo.Insert(ctx, match.WaitingEntry{Address: "a", CreatedAt: now.Add(time.Second)})
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryWaitingPoolOldestExcluding(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryWaitingPoolRepository()
	base := time.Now()

	oldest, err := repo.OldestExcluding(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, oldest)

	require.NoError(t, repo.Insert(ctx, match.WaitingEntry{Address: "a", CreatedAt: base}))
	require.NoError(t, repo.Insert(ctx, match.WaitingEntry{Address: "b", CreatedAt: base.Add(time.Second)}))
	require.NoError(t, repo.Insert(ctx, match.WaitingEntry{Address: "c", CreatedAt: base.Add(2 * time.Second)}))

	oldest, err = repo.OldestExcluding(ctx, "c")
	require.NoError(t, err)
	require.NotNil(t, oldest)
	assert.Equal(t, match.TransportAddress("a"), oldest.Address)

	oldest, err = repo.OldestExcluding(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, oldest)
	assert.Equal(t, match.TransportAddress("b"), oldest.Address)
}

func TestMemoryWaitingPoolDeletePairIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryWaitingPoolRepository()
	now := time.Now()
	require.NoError(t, repo.Insert(ctx, match.WaitingEntry{Address: "a", CreatedAt: now}))

	removed, err := repo.DeletePair(ctx, "a", "missing")
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)
	ok, _ := repo.Exists(ctx, "a")
	assert.True(t, ok, "self entry must survive a failed claim")

	require.NoError(t, repo.Insert(ctx, match.WaitingEntry{Address: "b", CreatedAt: now}))
	removed, err = repo.DeletePair(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	removed, err = repo.DeletePair(ctx, "a", "a")
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)
}

// TestMemoryWaitingPoolConcurrentClaims races many claimers against one candidate;
// exactly one claim may succeed.
func TestMemoryWaitingPoolConcurrentClaims(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryWaitingPoolRepository()
	now := time.Now()

	require.NoError(t, repo.Insert(ctx, match.WaitingEntry{Address: "target", CreatedAt: now}))
	const claimers = 16
	for i := 0; i < claimers; i++ {
		addr := match.TransportAddress(fmt.Sprintf("claimer-%d", i))
		require.NoError(t, repo.Insert(ctx, match.WaitingEntry{Address: addr, CreatedAt: now.Add(time.Second)}))
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			removed, err := repo.DeletePair(ctx, match.TransportAddress(fmt.Sprintf("claimer-%d", i)), "target")
			assert.NoError(t, err)
			if removed == 2 {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	n, _ := repo.Count(ctx)
	assert.Equal(t, int64(claimers-1), n)
}

func TestMemoryWaitingPoolDeleteCreatedBefore(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryWaitingPoolRepository()
	now := time.Now()
	require.NoError(t, repo.Insert(ctx, match.WaitingEntry{Address: "old", CreatedAt: now.Add(-time.Hour)}))
	require.NoError(t, repo.Insert(ctx, match.WaitingEntry{Address: "new", CreatedAt: now}))

	removed, err := repo.DeleteCreatedBefore(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	ok, _ := repo.Exists(ctx, "new")
	assert.True(t, ok)
}

func TestMemoryPresenceUpsertKeepsOneRecordPerIdentity(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPresenceRepository()
	now := time.Now()

	require.NoError(t, repo.Upsert(ctx, match.PresenceRecord{Identity: "u1", Address: "addr-1", LastSeen: now}))
	require.NoError(t, repo.Upsert(ctx, match.PresenceRecord{Identity: "u1", Address: "addr-2", LastSeen: now.Add(time.Second)}))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rec, ok := repo.Get("u1")
	require.True(t, ok)
	assert.Equal(t, match.TransportAddress("addr-2"), rec.Address)

	removed, err := repo.Delete(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	removed, err = repo.Delete(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)
}
