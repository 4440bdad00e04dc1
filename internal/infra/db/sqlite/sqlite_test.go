//go:build !integration

package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"uvian-worker/internal/domain"
	"uvian-worker/internal/domain/model"
	"uvian-worker/internal/domain/ports/repository"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "worker.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreJobs(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	job, _ := model.NewJob("j-1", "chat", map[string]any{"conversationId": "c-1"})
	if err := store.Create(ctx, nil, job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, nil, job); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	got, err := store.FindByID(ctx, nil, "j-1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.Status != model.JobStatusQueued || got.Input["conversationId"] != "c-1" || got.StartedAt != nil {
		t.Fatalf("unexpected job %+v", got)
	}
	if !got.CreatedAt.Equal(job.CreatedAt.UTC()) {
		t.Fatalf("created_at round trip: %v vs %v", got.CreatedAt, job.CreatedAt)
	}

	if err := store.MarkProcessing(ctx, nil, "j-1"); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if err := store.MarkFailed(ctx, nil, "j-1", "No executor found for type: chat", map[string]any{"error": "x"}); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	got, _ = store.FindByID(ctx, nil, "j-1")
	if got.Status != model.JobStatusFailed || got.ErrorMessage == "" || got.Output["error"] != "x" || got.StartedAt == nil || got.CompletedAt == nil {
		t.Fatalf("after failure %+v", got)
	}

	if err := store.MarkProcessing(ctx, nil, "j-1"); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkCompleted(ctx, nil, "j-1", map[string]any{"text": "ok"}); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	got, _ = store.FindByID(ctx, nil, "j-1")
	if got.Status != model.JobStatusCompleted || got.ErrorMessage != "" || got.Output["text"] != "ok" {
		t.Fatalf("after completion %+v", got)
	}

	if _, err := store.FindByID(ctx, nil, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.MarkCompleted(ctx, nil, "missing", nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreFailStale(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	for _, id := range []string{"running", "queued"} {
		job, _ := model.NewJob(id, "chat", nil)
		if err := store.Create(ctx, nil, job); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.MarkProcessing(ctx, nil, "running"); err != nil {
		t.Fatal(err)
	}

	n, err := store.FailStale(ctx, nil, time.Now().Add(-time.Hour), "stale")
	if err != nil || n != 0 {
		t.Fatalf("fresh job reaped: n=%d err=%v", n, err)
	}
	n, err = store.FailStale(ctx, nil, time.Now().Add(time.Second), "stale")
	if err != nil || n != 1 {
		t.Fatalf("FailStale: n=%d err=%v", n, err)
	}
	got, _ := store.FindByID(ctx, nil, "running")
	if got.Status != model.JobStatusFailed || got.ErrorMessage != "stale" || got.Output["error"] != "stale" {
		t.Fatalf("reaped job %+v", got)
	}
	got, _ = store.FindByID(ctx, nil, "queued")
	if got.Status != model.JobStatusQueued {
		t.Fatalf("queued job touched: %+v", got)
	}
}

func TestStoreConversationsAndMessages(t *testing.T) {
	store := newStore(t)
	convs := store.Conversations()
	ctx := context.Background()

	if err := convs.Create(ctx, nil, model.NewConversation("c-1", "Support")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := convs.AddMember(ctx, nil, &model.ConversationMember{ConversationID: "c-1", ProfileID: "agent", Role: model.MemberRoleMember}); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if err := convs.AddMember(ctx, nil, &model.ConversationMember{ConversationID: "nope", ProfileID: "agent", Role: model.MemberRoleMember}); !errors.Is(err, domain.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}

	c, err := convs.FindByID(ctx, nil, "c-1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if c.Title != "Support" || len(c.Members) != 1 || c.Members[0].ProfileID != "agent" {
		t.Fatalf("conversation %+v", c)
	}

	base := time.Now().UTC()
	for i, content := range []string{"third", "first", "second"} {
		m, _ := model.NewMessage("m-"+content, "c-1", "u", model.RoleUser, content)
		offsets := []time.Duration{3, 1, 2}
		m.CreatedAt = base.Add(offsets[i] * time.Millisecond)
		if err := store.Insert(ctx, nil, m); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	list, err := store.ListByConversation(ctx, nil, "c-1")
	if err != nil {
		t.Fatalf("ListByConversation: %v", err)
	}
	if len(list) != 3 || list[0].Content != "first" || list[1].Content != "second" || list[2].Content != "third" {
		t.Fatalf("order: %+v", list)
	}
}

func TestStoreCorruptTimestamp(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	job, _ := model.NewJob("j-bad", "chat", nil)
	if err := store.Create(ctx, nil, job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.db.ExecContext(ctx, `UPDATE jobs SET updated_at = 'yesterday' WHERE id = ?`, "j-bad"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.FindByID(ctx, nil, "j-bad"); !errors.Is(err, domain.ErrReadDatabaseRow) {
		t.Fatalf("expected ErrReadDatabaseRow, got %v", err)
	}

	c := &model.Conversation{ID: "c-bad", Title: "t"}
	if err := store.CreateConversation(ctx, nil, c); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if _, err := store.db.ExecContext(ctx, `UPDATE conversations SET created_at = '' WHERE id = ?`, "c-bad"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.FindConversation(ctx, nil, "c-bad"); !errors.Is(err, domain.ErrReadDatabaseRow) {
		t.Fatalf("expected ErrReadDatabaseRow, got %v", err)
	}
}

func TestStoreWithTx(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	abort := errors.New("abort")

	err := store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		job, _ := model.NewJob("tx-job", "chat", nil)
		if err := store.Create(ctx, tx, job); err != nil {
			return err
		}
		return abort
	})
	if !errors.Is(err, abort) {
		t.Fatalf("expected abort, got %v", err)
	}
	if _, err := store.FindByID(ctx, nil, "tx-job"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("rolled back job visible: %v", err)
	}
	if _, err := store.FindByID(ctx, struct{}{}, "x"); !errors.Is(err, domain.ErrInvalidExecContext) {
		t.Fatalf("expected ErrInvalidExecContext, got %v", err)
	}
}

func TestNewInMemory(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer store.Close()
	if err := store.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
}
