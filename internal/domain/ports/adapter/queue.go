package adapter

import (
	"context"
	"time"
)

// QueuedJob is a claimed queue entry. ID is the queue's native id; the
// domain job id normally lives in Data["jobId"].
type QueuedJob struct {
	ID         string
	Data       map[string]any
	Deliveries int64
	ClaimedAt  time.Time
}

// JobQueue is the work queue the consumer claims from.
type JobQueue interface {
	Enqueue(ctx context.Context, data map[string]any) (string, error)
	// Claim blocks for a bounded time; it returns nil, nil when nothing arrived.
	Claim(ctx context.Context) (*QueuedJob, error)
	Complete(ctx context.Context, job *QueuedJob) error
	// Fail leaves the entry for redelivery when retryable and attempts remain;
	// otherwise it moves it to the dead-letter stream.
	Fail(ctx context.Context, job *QueuedJob, cause error, retryable bool) error
	// Touch keeps an in-flight entry from being reclaimed by other consumers.
	Touch(ctx context.Context, job *QueuedJob) error
	Close() error
}

// Locker guards a key across workers.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
