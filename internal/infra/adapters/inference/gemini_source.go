package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"uvian-worker/internal/config"
	"uvian-worker/internal/domain/ports/adapter"
)

var _ adapter.ChunkSource = (*GeminiSource)(nil)

// GeminiSource streams from the Gemini API via the official SDK.
// Every response is emitted as {"text": ...}.
type GeminiSource struct {
	client    *genai.Client
	model     string
	maxTokens int
}

func NewGeminiSource(ctx context.Context, cfg config.GeminiConfig, maxTokens int) (*GeminiSource, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiSource{client: c, model: cfg.Model, maxTokens: maxTokens}, nil
}

func (g *GeminiSource) Name() string { return "gemini" }

func (g *GeminiSource) Produce(ctx context.Context, req adapter.ChatRequest, emit func(any) error) error {
	system, history := toGenAIHistory(req.Messages)
	if len(history) == 0 {
		return errors.New("gemini: no messages")
	}
	cfg := &genai.GenerateContentConfig{}
	if n := firstPositive(req.MaxTokens, g.maxTokens); n > 0 {
		cfg.MaxOutputTokens = int32(n)
	}
	if system != nil {
		cfg.SystemInstruction = system
	}

	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, history, cfg) {
		if err != nil {
			return fmt.Errorf("gemini stream: %w", err)
		}
		if err := emit(map[string]any{"text": resp.Text()}); err != nil {
			return err
		}
	}
	return nil
}

// toGenAIHistory splits system messages into a system instruction; Gemini
// has no system role in history.
func toGenAIHistory(msgs []adapter.Message) (*genai.Content, []*genai.Content) {
	var system *genai.Content
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.RoleUser
		switch strings.ToLower(m.Role) {
		case "assistant", "model":
			role = genai.RoleModel
		case "system":
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, &genai.Part{Text: m.Content})
			continue
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return system, out
}
