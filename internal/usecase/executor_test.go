//go:build !integration

package usecase

import (
	"context"
	"errors"
	"testing"

	"uvian-worker/internal/domain"
	"uvian-worker/internal/domain/model"
	"uvian-worker/internal/domain/ports/adapter"
)

func okExecutor(typ string) *funcExecutor {
	return &funcExecutor{typ: typ, fn: func(ctx context.Context, job *model.Job) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	}}
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistry(okExecutor("chat"), okExecutor("completion"))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	t.Run("lookup", func(t *testing.T) {
		e, err := r.Get("chat")
		if err != nil || e.Type() != "chat" {
			t.Fatalf("Get(chat) = %v, %v", e, err)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := r.Get("image")
		if !errors.Is(err, domain.ErrNoExecutor) {
			t.Fatalf("expected ErrNoExecutor, got %v", err)
		}
		if err.Error() != "No executor found for type: image" {
			t.Fatalf("unexpected message %q", err.Error())
		}
	})

	t.Run("duplicate rejected", func(t *testing.T) {
		if err := r.Register(okExecutor("chat")); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("types sorted", func(t *testing.T) {
		got := r.Types()
		if len(got) != 2 || got[0] != "chat" || got[1] != "completion" {
			t.Fatalf("Types() = %v", got)
		}
	})
}

func TestWithSystemPrompt(t *testing.T) {
	user := adapter.Message{Role: "user", Content: "hi"}

	t.Run("prepends", func(t *testing.T) {
		got := withSystemPrompt([]adapter.Message{user}, "be brief")
		if len(got) != 2 || got[0].Role != "system" || got[0].Content != "be brief" || got[1] != user {
			t.Fatalf("got %+v", got)
		}
	})

	t.Run("replaces leading system", func(t *testing.T) {
		in := []adapter.Message{{Role: "system", Content: "old"}, user}
		got := withSystemPrompt(in, "new")
		if len(got) != 2 || got[0].Content != "new" {
			t.Fatalf("got %+v", got)
		}
	})

	t.Run("empty prompt is a no-op", func(t *testing.T) {
		got := withSystemPrompt([]adapter.Message{user}, "")
		if len(got) != 1 {
			t.Fatalf("got %+v", got)
		}
	})

	t.Run("empty history", func(t *testing.T) {
		got := withSystemPrompt(nil, "p")
		if len(got) != 1 || got[0].Role != "system" {
			t.Fatalf("got %+v", got)
		}
	})
}
