// File: internal/usecase/dispatcher.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"uvian-worker/internal/domain"
	"uvian-worker/internal/domain/model"
	"uvian-worker/internal/domain/ports/adapter"
	"uvian-worker/internal/domain/ports/repository"
	"uvian-worker/internal/infra/logging"
	"uvian-worker/internal/infra/metrics"
)

// JobDispatcher takes one claimed queue entry to a terminal job status.
type JobDispatcher interface {
	Process(ctx context.Context, qj *adapter.QueuedJob) (map[string]any, error)
}

var _ JobDispatcher = (*Dispatcher)(nil)

const statusWriteTimeout = 10 * time.Second

type Dispatcher struct {
	jobs     repository.JobRepository
	registry *Registry
	locker   adapter.Locker
	lockTTL  time.Duration
	log      *zerolog.Logger
}

// NewDispatcher wires the dispatcher. locker may be nil.
func NewDispatcher(jobs repository.JobRepository, registry *Registry, locker adapter.Locker, lockTTL time.Duration, logger *zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		jobs:     jobs,
		registry: registry,
		locker:   locker,
		lockTTL:  lockTTL,
		log:      logging.Component(logger, "dispatcher"),
	}
}

// ResolveJobID prefers the domain id in the payload ("jobId"), then a
// legacy "id" field, then the queue's native id. ok is false when a
// fallback was used.
func ResolveJobID(qj *adapter.QueuedJob) (id string, ok bool) {
	if v, isStr := qj.Data["jobId"].(string); isStr && v != "" {
		return v, true
	}
	switch v := qj.Data["id"].(type) {
	case string:
		if v != "" {
			return v, false
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), false
	}
	return qj.ID, false
}

// Process runs the job behind qj. Every failure is returned so the queue's
// redelivery policy applies.
func (d *Dispatcher) Process(ctx context.Context, qj *adapter.QueuedJob) (result map[string]any, err error) {
	jobID, ok := ResolveJobID(qj)
	ctx = logging.WithJobID(ctx, jobID)
	l := logging.With(ctx, d.log)
	if !ok {
		l.Warn().Str("queue_id", qj.ID).Msg("no jobId in payload, using fallback id")
	}
	defer logging.TraceDuration(l, "Dispatcher.Process")()

	if d.locker != nil {
		key := "job:lock:" + jobID
		token, err := d.locker.TryLock(ctx, key, d.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("lock job %s: %w", jobID, err)
		}
		defer func() {
			uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
			defer cancel()
			if err := d.locker.Unlock(uctx, key, token); err != nil {
				l.Warn().Err(err).Msg("failed to release job lock")
			}
		}()
	}

	job, err := d.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			l.Error().Msg("job record not found")
			return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID)
		}
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}
	ctx = logging.WithJobType(ctx, job.Type)
	l = logging.With(ctx, d.log)

	// Unconditional: a redelivered job is executed again.
	if err := d.jobs.MarkProcessing(ctx, nil, job.ID); err != nil {
		return nil, fmt.Errorf("mark job %s processing: %w", job.ID, err)
	}
	start := time.Now()
	metrics.JobStarted()
	defer metrics.JobFinished()
	l.Info().Int64("deliveries", qj.Deliveries).Msg("job processing")

	exec, err := d.registry.Get(job.Type)
	if err != nil {
		d.recordFailure(ctx, l, job, err, start)
		return nil, err
	}

	result, err = d.execute(ctx, exec, job)
	if err != nil {
		d.recordFailure(ctx, l, job, err, start)
		return nil, err
	}

	sctx, cancel := statusContext(ctx)
	defer cancel()
	if err := d.jobs.MarkCompleted(sctx, nil, job.ID, result); err != nil {
		metrics.IncJob(job.Type, string(model.JobStatusFailed))
		return nil, fmt.Errorf("mark job %s completed: %w", job.ID, err)
	}
	metrics.IncJob(job.Type, string(model.JobStatusCompleted))
	metrics.ObserveJobDuration(job.Type, time.Since(start))
	l.Info().Dur("elapsed", time.Since(start)).Msg("job completed")
	return result, nil
}

// execute converts an executor panic into an error.
func (d *Dispatcher) execute(ctx context.Context, exec Executor, job *model.Job) (result map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor %s panicked: %v", exec.Type(), r)
		}
	}()
	return exec.Execute(ctx, job)
}

func (d *Dispatcher) recordFailure(ctx context.Context, l *zerolog.Logger, job *model.Job, cause error, start time.Time) {
	metrics.IncJob(job.Type, string(model.JobStatusFailed))
	metrics.ObserveJobDuration(job.Type, time.Since(start))
	l.Error().Err(cause).Dur("elapsed", time.Since(start)).Msg("job failed")

	sctx, cancel := statusContext(ctx)
	defer cancel()
	if err := d.jobs.MarkFailed(sctx, nil, job.ID, cause.Error(), model.ErrorOutput(cause)); err != nil {
		l.Error().Err(err).Msg("failed to record job failure")
	}
}

// statusContext outlives cancellation of ctx so terminal writes land
// during a forced shutdown.
func statusContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
}
