package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"uvian-worker/internal/config"
	"uvian-worker/internal/domain/ports/adapter"
)

var _ adapter.ChunkSource = (*OpenAISource)(nil)

// OpenAISource streams from any OpenAI-compatible chat completions API.
// Each SSE chunk is forwarded as its raw JSON so the normalizer sees the
// usual choices[0].delta.content shape.
type OpenAISource struct {
	client    openai.Client
	model     string
	maxTokens int
}

func NewOpenAISource(cfg config.OpenAIConfig, maxTokens int) (*OpenAISource, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key empty")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAISource{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: maxTokens,
	}, nil
}

func (o *OpenAISource) Name() string { return "openai" }

func (o *OpenAISource) Produce(ctx context.Context, req adapter.ChatRequest, emit func(any) error) error {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: toOpenAIMessages(req.Messages),
	}
	if n := firstPositive(req.MaxTokens, o.maxTokens); n > 0 {
		params.MaxCompletionTokens = openai.Int(int64(n))
	}

	stream := o.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if err := emit(json.RawMessage(chunk.RawJSON())); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("openai stream: %w", err)
	}
	return nil
}

func toOpenAIMessages(msgs []adapter.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
