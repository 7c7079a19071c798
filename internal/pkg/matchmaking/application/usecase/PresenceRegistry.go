package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	match "go-stranger/internal/pkg/matchmaking/application/domain"
	repository "go-stranger/internal/pkg/matchmaking/persistence/repository/port"
)

const defaultCallTimeout = 3 * time.Second

// PresenceRegistry tracks which participants are active. Presence is advisory:
// every store failure is logged and returned, never escalated into session state.
// There is no janitor; callers sweep opportunistically before counting.
type PresenceRegistry struct {
	Repo repository.PresenceRepository

	threshold   time.Duration
	callTimeout time.Duration
	now         func() time.Time
	logger      *slog.Logger

	mu        sync.Mutex
	beat      context.CancelFunc
	beatDone  chan struct{}
	beatOwner match.Identity
}

// PresenceOption customizes a PresenceRegistry.
type PresenceOption func(*PresenceRegistry)

// WithPresenceClock replaces time.Now, mainly for tests.
func WithPresenceClock(now func() time.Time) PresenceOption {
	return func(r *PresenceRegistry) { r.now = now }
}

func WithPresenceLogger(logger *slog.Logger) PresenceOption {
	return func(r *PresenceRegistry) { r.logger = logger }
}

func WithPresenceCallTimeout(d time.Duration) PresenceOption {
	return func(r *PresenceRegistry) { r.callTimeout = d }
}

// NewPresenceRegistry builds a registry whose records die once their heartbeat
// age exceeds threshold.
func NewPresenceRegistry(repo repository.PresenceRepository, threshold time.Duration, opts ...PresenceOption) *PresenceRegistry {
	r := &PresenceRegistry{
		Repo:        repo,
		threshold:   threshold,
		callTimeout: defaultCallTimeout,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Threshold is the staleness threshold.
func (r *PresenceRegistry) Threshold() time.Duration { return r.threshold }

// HeartbeatInterval is half the staleness threshold so one missed beat is tolerated.
func (r *PresenceRegistry) HeartbeatInterval() time.Duration { return r.threshold / 2 }

// RefreshPresence upserts the record for id and (re)schedules its heartbeat with addr.
// The heartbeat is scheduled even when the upsert fails; the next beat retries it.
func (r *PresenceRegistry) RefreshPresence(ctx context.Context, id match.Identity, addr match.TransportAddress) error {
	if !id.Valid() {
		return match.ErrInvalidIdentity
	}
	err := r.upsert(ctx, id, addr)
	r.scheduleHeartbeat(id, addr)
	return err
}

// SweepStale deletes every record whose heartbeat age at now exceeds the threshold.
func (r *PresenceRegistry) SweepStale(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	removed, err := r.Repo.DeleteSeenBefore(ctx, now.Add(-r.threshold))
	if err != nil {
		r.logger.Warn("presence sweep failed", "error", err)
		return 0, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if removed > 0 {
		r.logger.Debug("presence sweep removed stale records", "removed", removed)
	}
	return removed, nil
}

// CountActive sweeps and then counts the surviving records. A failed sweep does not
// prevent the count; the number is for display only.
func (r *PresenceRegistry) CountActive(ctx context.Context) (int64, error) {
	_, _ = r.SweepStale(ctx, r.now())

	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	n, err := r.Repo.Count(ctx)
	if err != nil {
		r.logger.Warn("presence count failed", "error", err)
		return 0, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return n, nil
}

// RemovePresence stops the heartbeat for id and deletes its record. Failures are
// logged; the sweep reclaims the record eventually.
func (r *PresenceRegistry) RemovePresence(ctx context.Context, id match.Identity) error {
	r.mu.Lock()
	if r.beatOwner == id {
		r.stopHeartbeatLocked()
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	if _, err := r.Repo.Delete(ctx, id); err != nil {
		r.logger.Warn("presence removal failed", "identity", id, "error", err)
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	r.logger.Info("presence removed", "identity", id)
	return nil
}

// Stop cancels the heartbeat, if any, and waits for it to exit.
func (r *PresenceRegistry) Stop() {
	r.mu.Lock()
	r.stopHeartbeatLocked()
	r.mu.Unlock()
}

func (r *PresenceRegistry) upsert(ctx context.Context, id match.Identity, addr match.TransportAddress) error {
	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	rec := match.PresenceRecord{Identity: id, Address: addr, LastSeen: r.now()}
	if err := r.Repo.Upsert(ctx, rec); err != nil {
		r.logger.Warn("presence upsert failed", "identity", id, "error", err)
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func (r *PresenceRegistry) scheduleHeartbeat(id match.Identity, addr match.TransportAddress) {
	interval := r.HeartbeatInterval()
	if interval <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopHeartbeatLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.beat = cancel
	r.beatDone = done
	r.beatOwner = id

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.upsert(ctx, id, addr); err == nil {
					r.logger.Debug("heartbeat sent", "identity", id)
				}
			}
		}
	}()
}

func (r *PresenceRegistry) stopHeartbeatLocked() {
	if r.beat == nil {
		return
	}
	r.beat()
	<-r.beatDone
	r.beat = nil
	r.beatDone = nil
	r.beatOwner = ""
}
