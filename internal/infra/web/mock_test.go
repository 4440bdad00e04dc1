//go:build !integration

package web

import (
	"context"
	"sync"

	"uvian-worker/internal/domain"
	"uvian-worker/internal/domain/model"

	"github.com/rs/zerolog"
)

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

type mockJobUseCase struct {
	mu        sync.Mutex
	jobs      map[string]*model.Job
	SubmitErr error
	GetErr    error
}

func newMockJobUseCase() *mockJobUseCase {
	return &mockJobUseCase{jobs: map[string]*model.Job{}}
}

func (m *mockJobUseCase) Submit(ctx context.Context, jobType string, input map[string]any) (*model.Job, error) {
	if m.SubmitErr != nil {
		return nil, m.SubmitErr
	}
	job, err := model.NewJob("", jobType, input)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return job, nil
}

func (m *mockJobUseCase) Get(ctx context.Context, id string) (*model.Job, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return j, nil
}
