package task

import (
	"context"
	"log/slog"
	"time"

	qport "go-stranger/internal/infrastructure/queue/port"
	"go-stranger/internal/pkg/matchmaking/application/usecase"
)

// SweepPresenceTaskType removes presence records whose heartbeat went stale.
// It complements the sweep clients run before counting.
const SweepPresenceTaskType = "matchmaking:sweep_presence"

const MaintenanceQueue = "maintenance"

// NewSweepPresenceTask builds the queue message; the payload is empty.
func NewSweepPresenceTask() qport.Task {
	return qport.Task{Type: SweepPresenceTaskType}
}

// RegisterSweepPresenceTask binds the handler to srv. now may be nil.
func RegisterSweepPresenceTask(srv qport.Server, registry *usecase.PresenceRegistry, now func() time.Time, logger *slog.Logger) {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	srv.Register(SweepPresenceTaskType, func(ctx context.Context, _ qport.Task) error {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		removed, err := registry.SweepStale(ctx, now())
		if err != nil {
			return err
		}
		if removed > 0 {
			logger.Info("swept stale presence", "removed", removed)
		}
		return nil
	})
}
