// File: internal/usecase/completion_executor.go
package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"uvian-worker/internal/domain"
	"uvian-worker/internal/domain/model"
	"uvian-worker/internal/domain/ports/adapter"
	"uvian-worker/internal/infra/logging"
)

const JobTypeCompletion = "completion"

var _ Executor = (*CompletionExecutor)(nil)

// CompletionExecutor streams plain TokenEvents for stateless prompts.
// Nothing is persisted besides the job output.
type CompletionExecutor struct {
	streamer     adapter.ChatStreamer
	events       adapter.EventPublisher
	systemPrompt string
	maxTokens    int
	log          *zerolog.Logger
}

func NewCompletionExecutor(streamer adapter.ChatStreamer, events adapter.EventPublisher, systemPrompt string, maxTokens int, logger *zerolog.Logger) *CompletionExecutor {
	return &CompletionExecutor{
		streamer:     streamer,
		events:       events,
		systemPrompt: systemPrompt,
		maxTokens:    maxTokens,
		log:          logging.Component(logger, "completion_executor"),
	}
}

func (e *CompletionExecutor) Type() string { return JobTypeCompletion }

func (e *CompletionExecutor) Execute(ctx context.Context, job *model.Job) (map[string]any, error) {
	channel := model.JobChannel(job.ID)
	if cid, ok := job.InputString("conversationId"); ok {
		channel = model.ConversationChannel(cid)
		ctx = logging.WithConversationID(ctx, cid)
	}

	var terminalSent bool
	out, err := e.run(ctx, job, channel, &terminalSent)
	if err != nil && !terminalSent {
		publishTokenFailure(ctx, e.events, channel, job.ID, err, logging.With(ctx, e.log))
	}
	return out, err
}

func (e *CompletionExecutor) run(ctx context.Context, job *model.Job, channel string, terminalSent *bool) (map[string]any, error) {
	msgs, err := completionMessages(job.Input)
	if err != nil {
		return nil, err
	}
	prompt := e.systemPrompt
	if p, ok := job.InputString("systemPrompt"); ok {
		prompt = p
	}
	req := adapter.ChatRequest{
		JobID:     job.ID,
		Messages:  withSystemPrompt(msgs, prompt),
		MaxTokens: e.maxTokens,
	}

	stream := e.streamer.OpenStream(ctx, req)
	defer stream.Close()

	var sb strings.Builder
	for tok, err := range stream.Tokens() {
		if err != nil {
			return nil, fmt.Errorf("inference stream: %w", err)
		}
		sb.WriteString(tok)
		if err := e.events.PublishToken(ctx, channel, model.TokenEvent{JobID: job.ID, Token: tok}); err != nil {
			return nil, err
		}
	}
	if err := e.events.PublishToken(ctx, channel, model.TokenEvent{JobID: job.ID, Finished: true}); err != nil {
		return nil, err
	}
	*terminalSent = true

	logging.With(ctx, e.log).Info().Int("chars", sb.Len()).Msg("completion streamed")
	return map[string]any{"text": sb.String()}, nil
}

// completionMessages accepts either a "messages" list of {role, content}
// objects or a bare "prompt" string.
func completionMessages(input map[string]any) ([]adapter.Message, error) {
	if raw, ok := input["messages"]; ok {
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("messages must be a list: %w", domain.ErrInvalidArgument)
		}
		out := make([]adapter.Message, 0, len(list)+1)
		for i, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("messages[%d] must be an object: %w", i, domain.ErrInvalidArgument)
			}
			role, _ := m["role"].(string)
			content, _ := m["content"].(string)
			if !model.Role(role).Valid() {
				return nil, fmt.Errorf("messages[%d] has invalid role %q: %w", i, role, domain.ErrInvalidArgument)
			}
			out = append(out, adapter.Message{Role: role, Content: content})
		}
		if len(out) > 0 {
			return out, nil
		}
	}
	if p, ok := input["prompt"].(string); ok && strings.TrimSpace(p) != "" {
		return []adapter.Message{{Role: string(model.RoleUser), Content: p}}, nil
	}
	return nil, &domain.MissingFieldError{Field: "messages"}
}
