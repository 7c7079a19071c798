package repository

import (
	"context"
	"time"

	match "go-stranger/internal/pkg/matchmaking/application/domain"
)

// PresenceRepository persists heartbeat-backed presence records.
// Implementations must keep at most one record per identity.
type PresenceRepository interface {
	// Upsert creates the record for rec.Identity or refreshes its address and LastSeen.
	Upsert(ctx context.Context, rec match.PresenceRecord) error
	// Delete removes the record for id and returns the number of rows removed.
	Delete(ctx context.Context, id match.Identity) (int64, error)
	// DeleteSeenBefore removes every record whose LastSeen is strictly before cutoff.
	DeleteSeenBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
}
