package repository

import (
	"context"
	"time"

	"uvian-worker/internal/domain/model"
)

// JobRepository is the port for the jobs table. Status writes are owned by
// the dispatcher; Create is used by producers (CLI, admin API).
type JobRepository interface {
	Create(ctx context.Context, tx Tx, job *model.Job) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)
	MarkProcessing(ctx context.Context, tx Tx, id string) error
	MarkCompleted(ctx context.Context, tx Tx, id string, output map[string]any) error
	MarkFailed(ctx context.Context, tx Tx, id string, errMsg string, output map[string]any) error
	// FailStale fails every job still processing that started before
	// startedBefore and returns how many rows changed.
	FailStale(ctx context.Context, tx Tx, startedBefore time.Time, errMsg string) (int64, error)
}
