// File: internal/usecase/job_uc.go
package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"uvian-worker/internal/domain"
	"uvian-worker/internal/domain/model"
	"uvian-worker/internal/domain/ports/adapter"
	"uvian-worker/internal/domain/ports/repository"
	"uvian-worker/internal/infra/logging"
)

// JobUseCase is the producer side: it records jobs and queues them by id.
type JobUseCase interface {
	Submit(ctx context.Context, jobType string, input map[string]any) (*model.Job, error)
	Get(ctx context.Context, id string) (*model.Job, error)
}

var _ JobUseCase = (*jobUC)(nil)

type jobUC struct {
	jobs  repository.JobRepository
	queue adapter.JobQueue
	log   *zerolog.Logger
}

func NewJobUseCase(jobs repository.JobRepository, queue adapter.JobQueue, logger *zerolog.Logger) *jobUC {
	return &jobUC{jobs: jobs, queue: queue, log: logging.Component(logger, "job_uc")}
}

func (u *jobUC) Submit(ctx context.Context, jobType string, input map[string]any) (*model.Job, error) {
	job, err := model.NewJob("", strings.TrimSpace(jobType), input)
	if err != nil {
		return nil, fmt.Errorf("new job: %w", err)
	}
	if err := u.jobs.Create(ctx, nil, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	qid, err := u.queue.Enqueue(ctx, map[string]any{"jobId": job.ID})
	if err != nil {
		// The row would otherwise sit in queued forever.
		sctx, cancel := statusContext(ctx)
		defer cancel()
		if merr := u.jobs.MarkFailed(sctx, nil, job.ID, "enqueue failed", model.ErrorOutput(err)); merr != nil {
			u.log.Error().Err(merr).Str("job_id", job.ID).Msg("failed to mark unqueued job")
		}
		return nil, fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	u.log.Info().Str("job_id", job.ID).Str("job_type", job.Type).Str("queue_id", qid).Msg("job submitted")
	return job, nil
}

func (u *jobUC) Get(ctx context.Context, id string) (*model.Job, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.jobs.FindByID(ctx, nil, id)
}
