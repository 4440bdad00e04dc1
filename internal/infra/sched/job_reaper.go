package sched

import (
	"context"
	"time"

	"uvian-worker/internal/domain/ports/repository"
	"uvian-worker/internal/infra/logging"
	"uvian-worker/internal/infra/metrics"

	"github.com/rs/zerolog"
)

const staleJobMessage = "worker lost: job exceeded processing deadline"

// JobReaper periodically fails jobs left in processing by a worker that
// died mid-run and whose queue entry will never settle them.
type JobReaper struct {
	interval   time.Duration
	staleAfter time.Duration
	jobs       repository.JobRepository
	log        *zerolog.Logger
	now        func() time.Time
}

func NewJobReaper(interval, staleAfter time.Duration, jobs repository.JobRepository, logger *zerolog.Logger) *JobReaper {
	return &JobReaper{
		interval:   interval,
		staleAfter: staleAfter,
		jobs:       jobs,
		log:        logging.Component(logger, "job_reaper"),
		now:        time.Now,
	}
}

func (r *JobReaper) Run(ctx context.Context) error {
	r.log.Info().Dur("interval", r.interval).Dur("stale_after", r.staleAfter).Msg("starting job reaper")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("stopping job reaper")
			return nil
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one pass and returns the number of jobs failed.
func (r *JobReaper) Sweep(ctx context.Context) int64 {
	sctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	n, err := r.jobs.FailStale(sctx, nil, r.now().Add(-r.staleAfter), staleJobMessage)
	if err != nil {
		r.log.Error().Err(err).Msg("reap stale jobs")
		return 0
	}
	if n > 0 {
		metrics.AddJobsReaped(n)
		r.log.Warn().Int64("count", n).Msg("failed stale processing jobs")
	}
	return n
}
