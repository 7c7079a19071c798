package port

import (
	"context"
	"time"
)

// Task is a background job: a stable type name plus opaque payload bytes.
type Task struct {
	Type    string
	Payload []byte
}

// Handler processes a Task. A non-nil error asks the backend to retry; handlers are idempotent.
type Handler func(ctx context.Context, task Task) error

// EnqueueOption maps onto backend options on a best-effort basis. Zero values mean unspecified.
type EnqueueOption struct {
	Queue     string
	ProcessIn time.Duration
	ProcessAt time.Time // wins over ProcessIn
	MaxRetry  int
	Timeout   time.Duration
	UniqueTTL time.Duration
	Retention time.Duration
	Deadline  time.Time
}

// Client enqueues tasks for background processing.
type Client interface {
	Enqueue(ctx context.Context, t Task, opts ...EnqueueOption) (id string, err error)
	Close() error
}

// Server runs workers. Run blocks until ctx is cancelled.
type Server interface {
	Register(taskType string, h Handler)
	Run(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Scheduler enqueues tasks on a cron spec (e.g. "@every 10s"). Run blocks until ctx is cancelled.
type Scheduler interface {
	Schedule(spec string, t Task, opts ...EnqueueOption) (entryID string, err error)
	Run(ctx context.Context) error
}
