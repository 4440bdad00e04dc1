package inference

import (
	"context"
	"strings"
	"time"

	"uvian-worker/internal/domain/ports/adapter"
)

var _ adapter.ChunkSource = (*EchoSource)(nil)

// EchoSource is a local/dev backend. It streams the last user message back
// word by word, in the RunPod vLLM chunk shape.
type EchoSource struct {
	delay time.Duration
}

func NewEchoSource(delay time.Duration) *EchoSource {
	return &EchoSource{delay: delay}
}

func (e *EchoSource) Name() string { return "echo" }

func (e *EchoSource) Produce(ctx context.Context, req adapter.ChatRequest, emit func(any) error) error {
	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			last = req.Messages[i].Content
			break
		}
	}
	for i, w := range strings.Fields(last) {
		if i > 0 {
			w = " " + w
		}
		if e.delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.delay):
			}
		}
		chunk := map[string]any{
			"output": map[string]any{
				"choices": []any{map[string]any{"tokens": []any{w}}},
			},
		}
		if err := emit(chunk); err != nil {
			return err
		}
	}
	return nil
}
