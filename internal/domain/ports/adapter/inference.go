package adapter

import (
	"context"
	"iter"
)

// Message represents a chat message sent upstream.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// ChatRequest is one inference call.
type ChatRequest struct {
	JobID     string
	Messages  []Message
	MaxTokens int
}

// Upstream job statuses reported by the poll endpoint.
const (
	UpstreamInQueue    = "IN_QUEUE"
	UpstreamInProgress = "IN_PROGRESS"
	UpstreamCompleted  = "COMPLETED"
	UpstreamFailed     = "FAILED"
	UpstreamCancelled  = "CANCELLED"
	UpstreamTimedOut   = "TIMED_OUT"
)

// PollResult is one response from the streaming-status endpoint.
// Stream holds raw decoded JSON chunks in arrival order.
type PollResult struct {
	Status string `json:"status"`
	Stream []any  `json:"stream"`
	Error  string `json:"error,omitempty"`
}

// InferenceBackend is a submit/poll upstream.
type InferenceBackend interface {
	Submit(ctx context.Context, req ChatRequest) (upstreamID string, err error)
	Poll(ctx context.Context, upstreamID string) (*PollResult, error)
}

// ChunkSource produces raw upstream chunks by calling emit in order.
// Produce blocks until the upstream stream ends.
type ChunkSource interface {
	Name() string
	Produce(ctx context.Context, req ChatRequest, emit func(chunk any) error) error
}

// TokenStream is a single-pass sequence of normalized tokens. A second
// iteration yields only domain.ErrStreamClosed.
type TokenStream interface {
	Tokens() iter.Seq2[string, error]
	Close()
}

// ChatStreamer opens a token stream for one request.
type ChatStreamer interface {
	OpenStream(ctx context.Context, req ChatRequest) TokenStream
}
