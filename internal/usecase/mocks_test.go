//go:build !integration

// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"uvian-worker/internal/domain"
	"uvian-worker/internal/domain/model"
	"uvian-worker/internal/domain/ports/adapter"
	"uvian-worker/internal/domain/ports/repository"
)

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// ---- jobs ----

type memJobRepo struct {
	mu        sync.Mutex
	store     map[string]*model.Job
	calls     []string
	findErr   error
	createErr error
}

func newMemJobRepo(jobs ...*model.Job) *memJobRepo {
	m := &memJobRepo{store: make(map[string]*model.Job)}
	for _, j := range jobs {
		m.store[j.ID] = j
	}
	return m
}

var _ repository.JobRepository = (*memJobRepo)(nil)

func (m *memJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[job.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *job
	m.store[job.ID] = &cp
	m.calls = append(m.calls, "create")
	return nil
}

func (m *memJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobRepo) update(id, call string, fn func(j *model.Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(j)
	j.UpdatedAt = time.Now()
	m.calls = append(m.calls, call)
	return nil
}

func (m *memJobRepo) MarkProcessing(ctx context.Context, tx repository.Tx, id string) error {
	return m.update(id, "processing", func(j *model.Job) {
		now := time.Now()
		j.Status = model.JobStatusProcessing
		j.StartedAt = &now
	})
}

func (m *memJobRepo) MarkCompleted(ctx context.Context, tx repository.Tx, id string, output map[string]any) error {
	return m.update(id, "completed", func(j *model.Job) {
		now := time.Now()
		j.Status = model.JobStatusCompleted
		j.Output = output
		j.CompletedAt = &now
	})
}

func (m *memJobRepo) MarkFailed(ctx context.Context, tx repository.Tx, id string, errMsg string, output map[string]any) error {
	return m.update(id, "failed", func(j *model.Job) {
		now := time.Now()
		j.Status = model.JobStatusFailed
		j.ErrorMessage = errMsg
		j.Output = output
		j.CompletedAt = &now
	})
}

func (m *memJobRepo) FailStale(ctx context.Context, tx repository.Tx, startedBefore time.Time, errMsg string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, j := range m.store {
		if j.Status == model.JobStatusProcessing && j.StartedAt != nil && j.StartedAt.Before(startedBefore) {
			j.Status = model.JobStatusFailed
			j.ErrorMessage = errMsg
			n++
		}
	}
	return n, nil
}

func (m *memJobRepo) get(id string) *model.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.store[id]; ok {
		cp := *j
		return &cp
	}
	return nil
}

// ---- conversations & messages ----

type memConversationRepo struct {
	mu    sync.Mutex
	store map[string]*model.Conversation
}

func newMemConversationRepo(ids ...string) *memConversationRepo {
	m := &memConversationRepo{store: make(map[string]*model.Conversation)}
	for _, id := range ids {
		m.store[id] = model.NewConversation(id, "test")
	}
	return m
}

var _ repository.ConversationRepository = (*memConversationRepo)(nil)

func (m *memConversationRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memConversationRepo) Create(ctx context.Context, tx repository.Tx, c *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.store[c.ID] = &cp
	return nil
}

func (m *memConversationRepo) AddMember(ctx context.Context, tx repository.Tx, mem *model.ConversationMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.store[mem.ConversationID]
	if !ok {
		return domain.ErrNotFound
	}
	c.Members = append(c.Members, *mem)
	return nil
}

type memMessageRepo struct {
	mu        sync.Mutex
	store     []*model.Message
	insertErr error
}

var _ repository.MessageRepository = (*memMessageRepo)(nil)

func (m *memMessageRepo) ListByConversation(ctx context.Context, tx repository.Tx, conversationID string) ([]*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Message
	for _, msg := range m.store {
		if msg.ConversationID == conversationID {
			cp := *msg
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memMessageRepo) Insert(ctx context.Context, tx repository.Tx, msg *model.Message) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	m.store = append(m.store, &cp)
	return nil
}

// ---- inference ----

// fakeStreamer yields tokens, then err (if any).
type fakeStreamer struct {
	mu     sync.Mutex
	tokens []string
	err    error
	reqs   []adapter.ChatRequest
	closed int
}

func (f *fakeStreamer) OpenStream(ctx context.Context, req adapter.ChatRequest) adapter.TokenStream {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	return &fakeStream{parent: f}
}

func (f *fakeStreamer) lastRequest() adapter.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}

type fakeStream struct{ parent *fakeStreamer }

func (s *fakeStream) Tokens() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, t := range s.parent.tokens {
			if !yield(t, nil) {
				return
			}
		}
		if s.parent.err != nil {
			yield("", s.parent.err)
		}
	}
}

func (s *fakeStream) Close() {
	s.parent.mu.Lock()
	s.parent.closed++
	s.parent.mu.Unlock()
}

// ---- events ----

type sentEvent struct {
	channel string
	token   *model.TokenEvent
	message *model.MessageEvent
}

type recordingEvents struct {
	mu         sync.Mutex
	events     []sentEvent
	messageErr error
	tokenErr   error
}

var _ adapter.EventPublisher = (*recordingEvents)(nil)

func (r *recordingEvents) PublishToken(ctx context.Context, channel string, ev model.TokenEvent) error {
	if r.tokenErr != nil {
		return r.tokenErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sentEvent{channel: channel, token: &ev})
	return nil
}

func (r *recordingEvents) PublishMessage(ctx context.Context, channel string, ev model.MessageEvent) error {
	if r.messageErr != nil {
		return r.messageErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sentEvent{channel: channel, message: &ev})
	return nil
}

func (r *recordingEvents) snapshot() []sentEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentEvent(nil), r.events...)
}

// ---- queue & lock ----

type memQueue struct {
	mu         sync.Mutex
	entries    []map[string]any
	enqueueErr error
}

var _ adapter.JobQueue = (*memQueue)(nil)

func (q *memQueue) Enqueue(ctx context.Context, data map[string]any) (string, error) {
	if q.enqueueErr != nil {
		return "", q.enqueueErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, data)
	return "1-0", nil
}

func (q *memQueue) Claim(ctx context.Context) (*adapter.QueuedJob, error) { return nil, nil }
func (q *memQueue) Complete(ctx context.Context, job *adapter.QueuedJob) error {
	return nil
}
func (q *memQueue) Fail(ctx context.Context, job *adapter.QueuedJob, cause error, retryable bool) error {
	return nil
}
func (q *memQueue) Touch(ctx context.Context, job *adapter.QueuedJob) error { return nil }
func (q *memQueue) Close() error { return nil }

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]string
	unlocked []string
}

func newFakeLocker() *fakeLocker { return &fakeLocker{held: make(map[string]string)} }

func (l *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return "", domain.ErrJobLocked
	}
	l.held[key] = "tok-" + key
	return l.held[key], nil
}

func (l *fakeLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	l.unlocked = append(l.unlocked, key)
	return nil
}

// ---- executors ----

type funcExecutor struct {
	typ string
	fn  func(ctx context.Context, job *model.Job) (map[string]any, error)
}

func (f *funcExecutor) Type() string { return f.typ }
func (f *funcExecutor) Execute(ctx context.Context, job *model.Job) (map[string]any, error) {
	return f.fn(ctx, job)
}
