package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	match "go-stranger/internal/pkg/matchmaking/application/domain"
	repository "go-stranger/internal/pkg/matchmaking/persistence/repository/port"
)

// WaitingPool wraps the shared queue of participants seeking a match.
// It holds no local state; the store's single-statement atomicity is the only guard.
type WaitingPool struct {
	Repo repository.WaitingPoolRepository

	callTimeout time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

func NewWaitingPool(repo repository.WaitingPoolRepository, logger *slog.Logger) *WaitingPool {
	if logger == nil {
		logger = slog.Default()
	}
	return &WaitingPool{
		Repo:        repo,
		callTimeout: defaultCallTimeout,
		now:         time.Now,
		logger:      logger,
	}
}

// Enqueue inserts a waiting entry stamped now. An entry that already exists for
// addr counts as success.
func (p *WaitingPool) Enqueue(ctx context.Context, addr match.TransportAddress) error {
	if !addr.Valid() {
		return match.ErrAddressNotReady
	}
	ctx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	err := p.Repo.Insert(ctx, match.WaitingEntry{Address: addr, CreatedAt: p.now()})
	if errors.Is(err, repository.ErrDuplicate) {
		p.logger.Warn("address already queued", "address", addr)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	p.logger.Info("added to waiting pool", "address", addr)
	return nil
}

// Withdraw deletes the caller's own entry. Absent entries are a no-op.
func (p *WaitingPool) Withdraw(ctx context.Context, addr match.TransportAddress) error {
	if !addr.Valid() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	removed, err := p.Repo.Delete(ctx, addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if removed > 0 {
		p.logger.Info("removed from waiting pool", "address", addr)
	}
	return nil
}

// PeekSelf reports whether the caller's entry is still queued. A missing entry
// means another participant claimed it.
func (p *WaitingPool) PeekSelf(ctx context.Context, addr match.TransportAddress) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	ok, err := p.Repo.Exists(ctx, addr)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return ok, nil
}

// FindOldestOther returns the earliest-queued entry other than addr, or nil.
// It is a snapshot read and may race with concurrent claims.
func (p *WaitingPool) FindOldestOther(ctx context.Context, addr match.TransportAddress) (*match.WaitingEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	entry, err := p.Repo.OldestExcluding(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return entry, nil
}

// ClaimPair removes self and other in one atomic request and returns how many
// entries were removed. Only a result of 2 is a successful claim.
func (p *WaitingPool) ClaimPair(ctx context.Context, self, other match.TransportAddress) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	removed, err := p.Repo.DeletePair(ctx, self, other)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return removed, nil
}

// Size returns the number of queued entries.
func (p *WaitingPool) Size(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	n, err := p.Repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return n, nil
}

// ReapOlderThan removes entries queued longer than maxAge, left behind by clients
// that vanished without withdrawing.
func (p *WaitingPool) ReapOlderThan(ctx context.Context, maxAge time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	removed, err := p.Repo.DeleteCreatedBefore(ctx, p.now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return removed, nil
}
