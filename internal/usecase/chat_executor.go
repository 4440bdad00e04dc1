// File: internal/usecase/chat_executor.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"uvian-worker/internal/domain"
	"uvian-worker/internal/domain/model"
	"uvian-worker/internal/domain/ports/adapter"
	"uvian-worker/internal/domain/ports/repository"
	"uvian-worker/internal/infra/logging"
)

const JobTypeChat = "chat"

var _ Executor = (*ChatExecutor)(nil)

// ChatExecutor streams an assistant reply into a conversation: one delta
// event per token, one completion event, then the message row.
type ChatExecutor struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	streamer      adapter.ChatStreamer
	events        adapter.EventPublisher
	systemPrompt  string
	maxTokens     int
	dev           bool
	log           *zerolog.Logger

	newID func() string
	now   func() time.Time
}

type ChatExecutorOptions struct {
	SystemPrompt string
	MaxTokens    int
	Dev          bool
}

func NewChatExecutor(
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	streamer adapter.ChatStreamer,
	events adapter.EventPublisher,
	opts ChatExecutorOptions,
	logger *zerolog.Logger,
) *ChatExecutor {
	return &ChatExecutor{
		conversations: conversations,
		messages:      messages,
		streamer:      streamer,
		events:        events,
		systemPrompt:  opts.SystemPrompt,
		maxTokens:     opts.MaxTokens,
		dev:           opts.Dev,
		log:           logging.Component(logger, "chat_executor"),
		newID:         uuid.NewString,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (e *ChatExecutor) Type() string { return JobTypeChat }

func (e *ChatExecutor) Execute(ctx context.Context, job *model.Job) (map[string]any, error) {
	conversationID, ok := job.InputString("conversationId")
	if !ok {
		return nil, &domain.MissingFieldError{Field: "conversationId"}
	}
	ctx = logging.WithConversationID(ctx, conversationID)
	channel := model.ConversationChannel(conversationID)

	senderID, ok := job.InputString("senderId", "agentId")
	if !ok {
		err := &domain.MissingFieldError{Field: "senderId"}
		publishTokenFailure(ctx, e.events, channel, job.ID, err, logging.With(ctx, e.log))
		return nil, err
	}

	var terminalSent bool
	out, err := e.run(ctx, job, conversationID, senderID, channel, &terminalSent)
	if err != nil && !terminalSent {
		publishTokenFailure(ctx, e.events, channel, job.ID, err, logging.With(ctx, e.log))
	}
	return out, err
}

func (e *ChatExecutor) run(ctx context.Context, job *model.Job, conversationID, senderID, channel string, terminalSent *bool) (map[string]any, error) {
	l := logging.With(ctx, e.log)

	conv, err := e.conversations.FindByID(ctx, nil, conversationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConversationNotFound, conversationID)
		}
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	history, err := e.messages.ListByConversation(ctx, nil, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	prompt := e.systemPrompt
	if p, ok := job.InputString("systemPrompt"); ok {
		prompt = p
	}
	req := adapter.ChatRequest{
		JobID:     job.ID,
		Messages:  withSystemPrompt(toAdapterMessages(history), prompt),
		MaxTokens: e.maxTokens,
	}
	l.Debug().Int("history", len(history)).Msg("opening inference stream")

	started := e.now()
	reply := model.Message{
		ID:             e.newID(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		Role:           model.RoleAssistant,
		CreatedAt:      started,
		UpdatedAt:      started,
	}

	stream := e.streamer.OpenStream(ctx, req)
	defer stream.Close()

	var sb strings.Builder
	for tok, err := range stream.Tokens() {
		if err != nil {
			return nil, fmt.Errorf("inference stream: %w", err)
		}
		sb.WriteString(tok)
		delta := reply
		delta.Content = tok
		delta.UpdatedAt = e.now()
		if err := e.events.PublishMessage(ctx, channel, model.MessageEvent{Message: delta, IsDelta: true}); err != nil {
			return nil, err
		}
	}

	final := reply
	final.Content = sb.String()
	final.UpdatedAt = e.now()
	if err := e.events.PublishMessage(ctx, channel, model.MessageEvent{Message: final, IsComplete: true}); err != nil {
		return nil, err
	}
	*terminalSent = true

	if err := e.messages.Insert(ctx, nil, &final); err != nil {
		return nil, fmt.Errorf("persist assistant message: %w", err)
	}
	l.Info().
		Str("message_id", final.ID).
		Int("chars", len(final.Content)).
		Str("preview", logging.Redact(final.Content, e.dev)).
		Msg("assistant message stored")

	return map[string]any{
		"text":           final.Content,
		"conversationId": conv.ID,
		"messageId":      final.ID,
	}, nil
}

func toAdapterMessages(history []*model.Message) []adapter.Message {
	out := make([]adapter.Message, 0, len(history)+1)
	for _, m := range history {
		out = append(out, adapter.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// publishTokenFailure emits the terminal error event. It runs on a detached
// context so subscribers hear about jobs cut short by shutdown.
func publishTokenFailure(ctx context.Context, events adapter.EventPublisher, channel, jobID string, cause error, l *zerolog.Logger) {
	pctx, cancel := statusContext(ctx)
	defer cancel()
	ev := model.TokenEvent{JobID: jobID, Finished: true, Error: cause.Error()}
	if err := events.PublishToken(pctx, channel, ev); err != nil {
		l.Warn().Err(err).Msg("failed to publish error event")
	}
}
