package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	match "go-stranger/internal/pkg/matchmaking/application/domain"
)

// OutcomeKind is how a search run ended on its own.
type OutcomeKind int

const (
	// OutcomeMatched: this side claimed a pair and must dial Counterpart.
	OutcomeMatched OutcomeKind = iota
	// OutcomeClaimed: another participant claimed this side; wait for an inbound session.
	OutcomeClaimed
	// OutcomeExhausted: the attempt budget ran out and the entry was withdrawn.
	OutcomeExhausted
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeMatched:
		return "matched"
	case OutcomeClaimed:
		return "claimed"
	case OutcomeExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Outcome is delivered exactly once per search run that is not cancelled.
type Outcome struct {
	Kind        OutcomeKind
	Counterpart match.TransportAddress
	Attempts    int
}

// SearchConfig bounds the polling loop.
type SearchConfig struct {
	Interval    time.Duration // fixed delay between polls
	MaxAttempts int           // polls before giving up
}

// DefaultSearchConfig polls every 1.5s for 20 attempts.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{Interval: 1500 * time.Millisecond, MaxAttempts: 20}
}

// Controller runs the waiting pool protocol for one client: enqueue self, poll for the
// oldest other entry, claim both entries atomically, and report who dials.
// At most one search run exists at a time; each run is a goroutine whose lifetime
// is bound to the run's context.
type Controller struct {
	pool   *WaitingPool
	cfg    SearchConfig
	logger *slog.Logger

	mu  sync.Mutex
	run *searchRun
}

type searchRun struct {
	self    match.TransportAddress
	cancel  context.CancelFunc
	done    chan struct{}
	outcome chan Outcome
}

func NewController(pool *WaitingPool, cfg SearchConfig, logger *slog.Logger) *Controller {
	defaults := DefaultSearchConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{pool: pool, cfg: cfg, logger: logger}
}

// Search starts a search run for self. The returned channel receives one Outcome
// unless the run is cancelled first. Calling Search before the own transport
// address is known is a programming error and returns match.ErrAddressNotReady.
func (c *Controller) Search(ctx context.Context, self match.TransportAddress) (<-chan Outcome, error) {
	if !self.Valid() {
		return nil, match.ErrAddressNotReady
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run != nil {
		return nil, match.ErrAlreadySearching
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &searchRun{
		self:    self,
		cancel:  cancel,
		done:    make(chan struct{}),
		outcome: make(chan Outcome, 1),
	}
	c.run = run

	c.logger.Info("search started", "address", self, "max_attempts", c.cfg.MaxAttempts)
	go c.loop(runCtx, run)
	return run.outcome, nil
}

// Searching reports whether a search run is active.
func (c *Controller) Searching() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run != nil
}

// Cancel stops the active run, waits for its goroutine to exit, and withdraws the
// entry. Without an active run it does nothing.
func (c *Controller) Cancel(ctx context.Context) {
	c.mu.Lock()
	run := c.run
	c.run = nil
	c.mu.Unlock()

	if run == nil {
		return
	}
	run.cancel()
	<-run.done

	if err := c.pool.Withdraw(ctx, run.self); err != nil {
		c.logger.Warn("withdraw after cancel failed", "address", run.self, "error", err)
	}
	c.logger.Info("search cancelled", "address", run.self)
}

func (c *Controller) loop(ctx context.Context, run *searchRun) {
	defer close(run.done)
	defer run.cancel()

	enqueued := c.enqueue(ctx, run.self)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		attempts++
		c.logger.Debug("search attempt", "address", run.self, "attempt", attempts, "max_attempts", c.cfg.MaxAttempts)

		if attempts > c.cfg.MaxAttempts {
			if err := c.pool.Withdraw(ctx, run.self); err != nil {
				c.logger.Warn("withdraw after exhaustion failed", "address", run.self, "error", err)
			}
			c.logger.Info("search exhausted", "address", run.self)
			c.finish(run, Outcome{Kind: OutcomeExhausted, Attempts: attempts - 1})
			return
		}

		if !enqueued {
			enqueued = c.enqueue(ctx, run.self)
			continue
		}

		if outcome, ok := c.poll(ctx, run.self); ok {
			outcome.Attempts = attempts
			c.finish(run, outcome)
			return
		}
	}
}

// poll runs one tick of the protocol. Store failures abandon the tick; the next
// tick starts over with fresh reads.
func (c *Controller) poll(ctx context.Context, self match.TransportAddress) (Outcome, bool) {
	present, err := c.pool.PeekSelf(ctx, self)
	if err != nil {
		c.logger.Warn("self check failed", "address", self, "error", err)
		return Outcome{}, false
	}
	if !present {
		c.logger.Info("claimed by another participant, waiting for incoming session", "address", self)
		return Outcome{Kind: OutcomeClaimed}, true
	}

	candidate, err := c.pool.FindOldestOther(ctx, self)
	if err != nil {
		c.logger.Warn("pool query failed", "address", self, "error", err)
		return Outcome{}, false
	}
	if candidate == nil {
		c.logger.Debug("no participants available yet", "address", self)
		return Outcome{}, false
	}

	c.logger.Info("candidate found", "address", self, "candidate", candidate.Address)
	removed, err := c.pool.ClaimPair(ctx, self, candidate.Address)
	switch {
	case err != nil:
		c.logger.Warn("claim failed, abandoning candidate", "address", self, "candidate", candidate.Address, "error", err)
		return Outcome{}, false
	case removed == 2:
		c.logger.Info("claim succeeded", "address", self, "candidate", candidate.Address)
		return Outcome{Kind: OutcomeMatched, Counterpart: candidate.Address}, true
	case removed == 0:
		c.logger.Info("claim lost to a concurrent poller", "address", self, "candidate", candidate.Address)
		return Outcome{}, false
	default:
		// A store without all-or-nothing pair deletes removed only one row. Put our
		// own entry back so the run can continue.
		c.logger.Error("partial claim", "address", self, "candidate", candidate.Address, "removed", removed)
		if err := c.pool.Enqueue(ctx, self); err != nil {
			c.logger.Warn("re-enqueue after partial claim failed", "address", self, "error", err)
		}
		return Outcome{}, false
	}
}

func (c *Controller) enqueue(ctx context.Context, self match.TransportAddress) bool {
	if err := c.pool.Enqueue(ctx, self); err != nil {
		c.logger.Warn("enqueue failed, retrying next tick", "address", self, "error", err)
		return false
	}
	return true
}

func (c *Controller) finish(run *searchRun, outcome Outcome) {
	c.mu.Lock()
	if c.run == run {
		c.run = nil
	}
	c.mu.Unlock()
	run.outcome <- outcome
}
