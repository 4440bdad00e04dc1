//go:build !integration

package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"uvian-worker/internal/domain"
	"uvian-worker/internal/domain/model"
)

type chatFixture struct {
	convs    *memConversationRepo
	msgs     *memMessageRepo
	streamer *fakeStreamer
	events   *recordingEvents
	exec     *ChatExecutor
}

func newChatFixture(tokens []string, streamErr error) *chatFixture {
	f := &chatFixture{
		convs:    newMemConversationRepo("c1"),
		msgs:     &memMessageRepo{},
		streamer: &fakeStreamer{tokens: tokens, err: streamErr},
		events:   &recordingEvents{},
	}
	f.exec = NewChatExecutor(f.convs, f.msgs, f.streamer, f.events, ChatExecutorOptions{SystemPrompt: "default prompt", MaxTokens: 128}, nopLogger())
	f.exec.newID = func() string { return "m-1" }
	return f
}

func chatJob(input map[string]any) *model.Job {
	return &model.Job{ID: "j1", Type: JobTypeChat, Input: input}
}

func TestChatExecutor_StreamsAndPersists(t *testing.T) {
	f := newChatFixture([]string{"Hel", "lo"}, nil)
	past := time.Now().Add(-time.Minute)
	f.msgs.store = []*model.Message{
		{ID: "u1", ConversationID: "c1", Role: model.RoleUser, Content: "hi", CreatedAt: past},
	}

	out, err := f.exec.Execute(context.Background(), chatJob(map[string]any{"conversationId": "c1", "senderId": "agent-1"}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out["text"] != "Hello" || out["conversationId"] != "c1" || out["messageId"] != "m-1" {
		t.Fatalf("unexpected result %v", out)
	}

	evs := f.events.snapshot()
	if len(evs) != 3 {
		t.Fatalf("expected 3 events, got %d", len(evs))
	}
	for i, want := range []string{"Hel", "lo"} {
		ev := evs[i]
		if ev.channel != "conversation:c1:messages" || ev.message == nil || !ev.message.IsDelta || ev.message.Message.Content != want {
			t.Fatalf("event %d = %+v", i, ev)
		}
		if ev.message.Message.ID != "m-1" || ev.message.Message.Role != model.RoleAssistant {
			t.Fatalf("event %d has wrong identity: %+v", i, ev.message.Message)
		}
	}
	last := evs[2].message
	if last == nil || !last.IsComplete || last.IsDelta || last.Message.Content != "Hello" {
		t.Fatalf("final event = %+v", evs[2])
	}

	if len(f.msgs.store) != 2 {
		t.Fatalf("expected assistant message stored, have %d messages", len(f.msgs.store))
	}
	stored := f.msgs.store[1]
	if stored.ID != "m-1" || stored.Content != "Hello" || stored.SenderID != "agent-1" || stored.Role != model.RoleAssistant {
		t.Fatalf("stored = %+v", stored)
	}

	req := f.streamer.lastRequest()
	if req.JobID != "j1" || req.MaxTokens != 128 {
		t.Fatalf("request = %+v", req)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[0].Content != "default prompt" || req.Messages[1].Content != "hi" {
		t.Fatalf("request messages = %+v", req.Messages)
	}
	if f.streamer.closed != 1 {
		t.Fatalf("stream closed %d times", f.streamer.closed)
	}
}

func TestChatExecutor_Input(t *testing.T) {
	t.Run("agentId fallback and prompt override", func(t *testing.T) {
		f := newChatFixture([]string{"x"}, nil)
		f.msgs.store = []*model.Message{{ID: "s", ConversationID: "c1", Role: model.RoleSystem, Content: "stored"}}
		_, err := f.exec.Execute(context.Background(), chatJob(map[string]any{
			"conversationId": "c1", "agentId": "agent-2", "systemPrompt": "custom",
		}))
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		req := f.streamer.lastRequest()
		if len(req.Messages) != 1 || req.Messages[0].Content != "custom" {
			t.Fatalf("messages = %+v", req.Messages)
		}
		if f.msgs.store[1].SenderID != "agent-2" {
			t.Fatalf("sender = %q", f.msgs.store[1].SenderID)
		}
	})

	t.Run("missing conversationId", func(t *testing.T) {
		f := newChatFixture(nil, nil)
		_, err := f.exec.Execute(context.Background(), chatJob(map[string]any{"senderId": "a"}))
		var mf *domain.MissingFieldError
		if !errors.As(err, &mf) || mf.Field != "conversationId" {
			t.Fatalf("expected missing conversationId, got %v", err)
		}
		if len(f.events.snapshot()) != 0 {
			t.Fatal("no events expected without a channel")
		}
	})

	t.Run("missing sender", func(t *testing.T) {
		f := newChatFixture(nil, nil)
		_, err := f.exec.Execute(context.Background(), chatJob(map[string]any{"conversationId": "c1"}))
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
		evs := f.events.snapshot()
		if len(evs) != 1 || evs[0].token == nil || !evs[0].token.Finished || evs[0].token.Error == "" {
			t.Fatalf("expected one terminal error event, got %+v", evs)
		}
		if evs[0].channel != "conversation:c1:messages" || evs[0].token.JobID != "j1" {
			t.Fatalf("terminal event = %s %+v", evs[0].channel, evs[0].token)
		}
		if len(f.streamer.reqs) != 0 {
			t.Fatal("stream must not be opened without a sender")
		}
	})
}

func TestChatExecutor_Failures(t *testing.T) {
	input := map[string]any{"conversationId": "c1", "senderId": "a"}

	t.Run("conversation not found publishes error", func(t *testing.T) {
		f := newChatFixture(nil, nil)
		_, err := f.exec.Execute(context.Background(), chatJob(map[string]any{"conversationId": "nope", "senderId": "a"}))
		if !errors.Is(err, domain.ErrConversationNotFound) {
			t.Fatalf("expected ErrConversationNotFound, got %v", err)
		}
		evs := f.events.snapshot()
		if len(evs) != 1 || evs[0].token == nil || !evs[0].token.Finished || evs[0].token.Error == "" {
			t.Fatalf("events = %+v", evs)
		}
		if evs[0].channel != "conversation:nope:messages" {
			t.Fatalf("channel = %s", evs[0].channel)
		}
	})

	t.Run("stream error after deltas", func(t *testing.T) {
		upstream := errors.New("upstream down")
		f := newChatFixture([]string{"a", "b"}, upstream)
		_, err := f.exec.Execute(context.Background(), chatJob(input))
		if !errors.Is(err, upstream) {
			t.Fatalf("expected upstream error, got %v", err)
		}
		evs := f.events.snapshot()
		if len(evs) != 3 {
			t.Fatalf("expected 2 deltas and 1 error event, got %+v", evs)
		}
		if evs[2].token == nil || !evs[2].token.Finished || evs[2].token.JobID != "j1" {
			t.Fatalf("terminal = %+v", evs[2])
		}
		for _, ev := range evs {
			if ev.message != nil && ev.message.IsComplete {
				t.Fatal("no completion event expected")
			}
		}
		if len(f.msgs.store) != 0 {
			t.Fatal("nothing should be persisted")
		}
	})

	t.Run("persist failure after completion sends no second terminal", func(t *testing.T) {
		f := newChatFixture([]string{"ok"}, nil)
		f.msgs.insertErr = errors.New("disk full")
		_, err := f.exec.Execute(context.Background(), chatJob(input))
		if err == nil {
			t.Fatal("expected persist error")
		}
		for _, ev := range f.events.snapshot() {
			if ev.token != nil {
				t.Fatalf("unexpected error event after completion: %+v", ev.token)
			}
		}
	})

	t.Run("publish failure stops streaming", func(t *testing.T) {
		f := newChatFixture([]string{"a", "b", "c"}, nil)
		f.events.messageErr = errors.New("redis gone")
		_, err := f.exec.Execute(context.Background(), chatJob(input))
		if err == nil {
			t.Fatal("expected publish error")
		}
		if f.streamer.closed != 1 {
			t.Fatalf("stream closed %d times", f.streamer.closed)
		}
	})
}
