package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go-stranger/internal/infrastructure/config"
	qadapter "go-stranger/internal/infrastructure/queue/adapter"
	qport "go-stranger/internal/infrastructure/queue/port"
	"go-stranger/internal/pkg/matchmaking/application/task"
	"go-stranger/internal/pkg/matchmaking/application/usecase"
	"go-stranger/internal/pkg/matchmaking/persistence"
)

// The worker runs store maintenance: it sweeps stale presence and reaps
// abandoned waiting entries on a schedule, using asynq over Redis.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load .env file
	if err := config.LoadDotEnv(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}
	cfg := config.Load()
	if cfg.RedisURL == "" {
		log.Fatal("REDIS_URL is required by the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	stores, err := persistence.Open(startCtx, cfg, "go-stranger-worker", logger)
	cancel()
	if err != nil {
		log.Fatalf("failed to open stores: %v", err)
	}
	defer stores.Close()

	registry := usecase.NewPresenceRegistry(stores.Presence, cfg.StalenessThreshold, usecase.WithPresenceLogger(logger))
	defer registry.Stop()
	pool := usecase.NewWaitingPool(stores.Waiting, logger)

	srv, err := qadapter.NewAsynqServer(cfg.RedisURL, qadapter.ServerConfig{
		Concurrency: cfg.AsynqConcurrency,
		Queues:      cfg.AsynqQueues,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create queue server: %v", err)
	}
	task.RegisterSweepPresenceTask(srv, registry, nil, logger)
	task.RegisterReapWaitingTask(srv, pool, cfg.WaitingEntryMaxAge, logger)

	scheduler, err := qadapter.NewAsynqScheduler(cfg.RedisURL, logger)
	if err != nil {
		log.Fatalf("failed to create scheduler: %v", err)
	}
	if err := task.ScheduleMaintenance(scheduler, cfg.WaitingEntryMaxAge); err != nil {
		log.Fatalf("failed to schedule maintenance: %v", err)
	}

	// Clear whatever went stale while no worker was running.
	if client, err := qadapter.NewAsynqClient(cfg.RedisURL); err == nil {
		if _, err := client.Enqueue(ctx, task.NewSweepPresenceTask(), qport.EnqueueOption{Queue: task.MaintenanceQueue, MaxRetry: 1}); err != nil {
			logger.Warn("initial sweep not enqueued", "err", err)
		}
		_ = client.Close()
	}

	var wg sync.WaitGroup
	for name, run := range map[string]func(context.Context) error{
		"server":    srv.Run,
		"scheduler": scheduler.Run,
	} {
		wg.Add(1)
		go func(name string, run func(context.Context) error) {
			defer wg.Done()
			if err := run(ctx); err != nil {
				logger.Error("worker component stopped", "component", name, "err", err)
				stop()
			}
		}(name, run)
	}

	logger.Info("worker started", "queues", cfg.AsynqQueues, "concurrency", cfg.AsynqConcurrency)
	wg.Wait()
}
