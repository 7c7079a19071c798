package repository

import (
	"context"
	"errors"
	"time"

	match "go-stranger/internal/pkg/matchmaking/application/domain"
)

// ErrDuplicate is returned by Insert when the address is already queued.
var ErrDuplicate = errors.New("waiting pool: address already queued")

// WaitingPoolRepository persists the shared queue of participants seeking a match.
// An address appears at most once; all safety comes from single-statement atomicity.
type WaitingPoolRepository interface {
	Insert(ctx context.Context, e match.WaitingEntry) error
	Delete(ctx context.Context, addr match.TransportAddress) (int64, error)
	Exists(ctx context.Context, addr match.TransportAddress) (bool, error)
	// OldestExcluding returns the entry with the smallest CreatedAt whose address differs
	// from addr, or nil when there is none.
	OldestExcluding(ctx context.Context, addr match.TransportAddress) (*match.WaitingEntry, error)
	// DeletePair removes both entries or neither and reports how many rows were removed.
	DeletePair(ctx context.Context, a, b match.TransportAddress) (int64, error)
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
}
