package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	qport "go-stranger/internal/infrastructure/queue/port"
	"go-stranger/internal/pkg/matchmaking/application/usecase"
)

// ReapWaitingTaskType removes waiting-pool entries left behind by clients that
// crashed mid-search.
const ReapWaitingTaskType = "matchmaking:reap_waiting"

// ReapWaitingTaskPayload is the JSON payload transported via the queue.
type ReapWaitingTaskPayload struct {
	MaxAgeSeconds int64 `json:"maxAgeSeconds"`
}

func NewReapWaitingTask(maxAge time.Duration) (qport.Task, error) {
	body, err := json.Marshal(ReapWaitingTaskPayload{MaxAgeSeconds: int64(maxAge / time.Second)})
	if err != nil {
		return qport.Task{}, err
	}
	return qport.Task{Type: ReapWaitingTaskType, Payload: body}, nil
}

// RegisterReapWaitingTask binds the handler to srv. fallback is used when the
// payload carries no usable age.
func RegisterReapWaitingTask(srv qport.Server, pool *usecase.WaitingPool, fallback time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	srv.Register(ReapWaitingTaskType, func(ctx context.Context, t qport.Task) error {
		maxAge := fallback
		if len(t.Payload) > 0 {
			var p ReapWaitingTaskPayload
			if err := json.Unmarshal(t.Payload, &p); err != nil {
				return fmt.Errorf("reap_waiting: decode payload: %w", err)
			}
			if p.MaxAgeSeconds > 0 {
				maxAge = time.Duration(p.MaxAgeSeconds) * time.Second
			}
		}

		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		removed, err := pool.ReapOlderThan(ctx, maxAge)
		if err != nil {
			return err
		}
		if removed > 0 {
			logger.Info("reaped abandoned waiting entries", "removed", removed, "max_age", maxAge)
		}
		return nil
	})
}
