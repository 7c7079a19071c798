package task

import (
	"fmt"
	"time"

	qport "go-stranger/internal/infrastructure/queue/port"
)

const (
	SweepPresenceSpec = "@every 10s"
	ReapWaitingSpec   = "@every 30s"
)

// ScheduleMaintenance registers the periodic store maintenance tasks.
func ScheduleMaintenance(s qport.Scheduler, waitingMaxAge time.Duration) error {
	opt := qport.EnqueueOption{Queue: MaintenanceQueue, MaxRetry: 1, Timeout: 15 * time.Second}

	sweepOpt := opt
	sweepOpt.UniqueTTL = 10 * time.Second
	if _, err := s.Schedule(SweepPresenceSpec, NewSweepPresenceTask(), sweepOpt); err != nil {
		return fmt.Errorf("schedule %s: %w", SweepPresenceTaskType, err)
	}

	reap, err := NewReapWaitingTask(waitingMaxAge)
	if err != nil {
		return err
	}
	reapOpt := opt
	reapOpt.UniqueTTL = 30 * time.Second
	if _, err := s.Schedule(ReapWaitingSpec, reap, reapOpt); err != nil {
		return fmt.Errorf("schedule %s: %w", ReapWaitingTaskType, err)
	}
	return nil
}
