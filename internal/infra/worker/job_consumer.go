// File: internal/infra/worker/job_consumer.go
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"uvian-worker/internal/domain"
	"uvian-worker/internal/domain/ports/adapter"
	"uvian-worker/internal/infra/logging"
	"uvian-worker/internal/usecase"
)

const (
	ackTimeout      = 10 * time.Second
	claimBackoffMin = 500 * time.Millisecond
	claimBackoffMax = 10 * time.Second
)

// JobConsumer feeds claimed queue entries through the dispatcher, one per
// pool slot, and settles each entry with Complete or Fail.
type JobConsumer struct {
	queue      adapter.JobQueue
	dispatcher usecase.JobDispatcher
	pool       *Pool
	heartbeat  time.Duration
	log        *zerolog.Logger
}

// NewJobConsumer wires the consumer. heartbeat <= 0 disables Touch.
func NewJobConsumer(queue adapter.JobQueue, dispatcher usecase.JobDispatcher, pool *Pool, heartbeat time.Duration, logger *zerolog.Logger) *JobConsumer {
	return &JobConsumer{
		queue:      queue,
		dispatcher: dispatcher,
		pool:       pool,
		heartbeat:  heartbeat,
		log:        logging.Component(logger, "job_consumer"),
	}
}

// Run keeps every pool slot busy claiming until ctx is cancelled. Claims
// use ctx; execution uses the pool's task context so cancelling ctx stops
// intake without aborting running jobs.
func (c *JobConsumer) Run(ctx context.Context) error {
	c.log.Info().Int("concurrency", c.pool.Size()).Msg("job consumer started")
	defer c.log.Info().Msg("job consumer stopped")

	b := &backoff{}
	for {
		err := c.pool.Submit(ctx, func(taskCtx context.Context) error {
			return c.claimOne(ctx, taskCtx, b)
		})
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrPoolClosed) {
				return nil
			}
			return err
		}
	}
}

func (c *JobConsumer) claimOne(claimCtx, taskCtx context.Context, b *backoff) error {
	job, err := c.queue.Claim(claimCtx)
	if err != nil {
		if claimCtx.Err() != nil || errors.Is(err, domain.ErrQueueClosed) {
			return nil
		}
		wait := b.next()
		c.log.Error().Err(err).Dur("retry_in", wait).Msg("claim failed")
		sleepCtx(claimCtx, wait)
		return err
	}
	b.reset()
	if job == nil {
		return nil
	}
	c.process(taskCtx, job)
	return nil
}

func (c *JobConsumer) process(ctx context.Context, job *adapter.QueuedJob) {
	stop := c.keepAlive(ctx, job)
	_, err := c.dispatcher.Process(ctx, job)
	stop()

	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer cancel()
	if err == nil {
		if aerr := c.queue.Complete(actx, job); aerr != nil {
			c.log.Error().Err(aerr).Str("entry_id", job.ID).Msg("complete failed")
		}
		return
	}
	if ferr := c.queue.Fail(actx, job, err, Retryable(err)); ferr != nil {
		c.log.Error().Err(ferr).Str("entry_id", job.ID).Msg("fail failed")
	}
}

// keepAlive touches the entry periodically while the job runs.
func (c *JobConsumer) keepAlive(ctx context.Context, job *adapter.QueuedJob) (stop func()) {
	if c.heartbeat <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		t := time.NewTicker(c.heartbeat)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				if err := c.queue.Touch(ctx, job); err != nil {
					c.log.Warn().Err(err).Str("entry_id", job.ID).Msg("heartbeat failed")
				}
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

// Retryable reports whether a redelivery could succeed. Missing jobs or
// conversations, unknown job types and invalid input fail the same way
// every time.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrNoExecutor),
		errors.Is(err, domain.ErrInvalidArgument):
		return false
	}
	return true
}

// backoff is shared by all claiming slots so a broken queue is not
// hammered n times over.
type backoff struct {
	mu  sync.Mutex
	cur time.Duration
}

func (b *backoff) next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.cur == 0:
		b.cur = claimBackoffMin
	case b.cur*2 > claimBackoffMax:
		b.cur = claimBackoffMax
	default:
		b.cur *= 2
	}
	return b.cur
}

func (b *backoff) reset() {
	b.mu.Lock()
	b.cur = 0
	b.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
