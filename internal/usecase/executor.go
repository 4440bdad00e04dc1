package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"uvian-worker/internal/domain"
	"uvian-worker/internal/domain/model"
	"uvian-worker/internal/domain/ports/adapter"
)

// Executor runs the domain logic for one job type and returns the job output.
type Executor interface {
	Type() string
	Execute(ctx context.Context, job *model.Job) (map[string]any, error)
}

// Registry maps job type tags to executors. It is filled at startup.
type Registry struct {
	mu     sync.RWMutex
	byType map[string]Executor
}

func NewRegistry(execs ...Executor) (*Registry, error) {
	r := &Registry{byType: make(map[string]Executor, len(execs))}
	for _, e := range execs {
		if err := r.Register(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(e Executor) error {
	if e == nil || e.Type() == "" {
		return fmt.Errorf("register executor: %w", domain.ErrInvalidArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byType[e.Type()]; dup {
		return fmt.Errorf("executor for %q: %w", e.Type(), domain.ErrAlreadyExists)
	}
	r.byType[e.Type()] = e
	return nil
}

// Get returns *domain.UnknownJobTypeError for unregistered types.
func (r *Registry) Get(jobType string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byType[jobType]
	if !ok {
		return nil, &domain.UnknownJobTypeError{Type: jobType}
	}
	return e, nil
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byType))
	for t := range r.byType {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// withSystemPrompt replaces the content of a leading system message or
// prepends one. An empty prompt leaves msgs untouched.
func withSystemPrompt(msgs []adapter.Message, prompt string) []adapter.Message {
	if prompt == "" {
		return msgs
	}
	if len(msgs) > 0 && msgs[0].Role == string(model.RoleSystem) {
		msgs[0].Content = prompt
		return msgs
	}
	return append([]adapter.Message{{Role: string(model.RoleSystem), Content: prompt}}, msgs...)
}
