package inference

import (
	"context"
	"fmt"
	"time"

	"uvian-worker/internal/domain"
	"uvian-worker/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

var _ adapter.ChunkSource = (*PollingSource)(nil)

// PollingSource drives a submit/poll backend: one submit, then polls until
// the upstream job reaches a terminal status.
type PollingSource struct {
	name     string
	backend  adapter.InferenceBackend
	interval time.Duration
	log      *zerolog.Logger
}

func NewPollingSource(name string, backend adapter.InferenceBackend, interval time.Duration, logger *zerolog.Logger) *PollingSource {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &PollingSource{name: name, backend: backend, interval: interval, log: logger}
}

func (p *PollingSource) Name() string { return p.name }

func (p *PollingSource) Produce(ctx context.Context, req adapter.ChatRequest, emit func(any) error) error {
	upstreamID, err := p.backend.Submit(ctx, req)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	l := p.log.With().Str("job_id", req.JobID).Str("upstream_id", upstreamID).Logger()
	l.Debug().Msg("upstream job submitted")

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		res, err := p.backend.Poll(ctx, upstreamID)
		if err != nil {
			return fmt.Errorf("poll %s: %w", upstreamID, err)
		}
		for _, chunk := range res.Stream {
			if err := emit(chunk); err != nil {
				return err
			}
		}

		switch res.Status {
		case adapter.UpstreamCompleted, adapter.UpstreamCancelled, adapter.UpstreamTimedOut:
			if res.Status != adapter.UpstreamCompleted {
				l.Warn().Str("status", res.Status).Msg("upstream job ended early")
			}
			return nil
		case adapter.UpstreamFailed:
			if res.Error != "" {
				return fmt.Errorf("%w: %s", domain.ErrUpstreamFailed, res.Error)
			}
			return domain.ErrUpstreamFailed
		}

		if len(res.Stream) > 0 {
			continue
		}
		timer.Reset(p.interval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}
