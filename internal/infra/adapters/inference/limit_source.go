package inference

import (
	"context"

	"uvian-worker/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.ChunkSource = (*limitedSource)(nil)

type limitedSource struct {
	inner adapter.ChunkSource
	sem   chan struct{}
}

// NewLimitedSource caps concurrent upstream streams. maxConcurrent <= 0
// returns inner unchanged.
func NewLimitedSource(inner adapter.ChunkSource, maxConcurrent int) adapter.ChunkSource {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedSource{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedSource) Name() string { return l.inner.Name() }

func (l *limitedSource) Produce(ctx context.Context, req adapter.ChatRequest, emit func(any) error) error {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.inner.Produce(ctx, req, emit)
}
