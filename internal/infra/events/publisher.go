package events

import (
	"context"
	"encoding/json"
	"fmt"

	"uvian-worker/internal/domain/model"
	"uvian-worker/internal/domain/ports/adapter"
	"uvian-worker/internal/infra/metrics"
)

var _ adapter.EventPublisher = (*Publisher)(nil)

// Publisher shapes events and hands them to the pub/sub transport in a
// single best-effort publish. It keeps no state between calls.
type Publisher struct {
	bus adapter.PubSub
}

func NewPublisher(bus adapter.PubSub) *Publisher {
	return &Publisher{bus: bus}
}

func (p *Publisher) PublishToken(ctx context.Context, channel string, ev model.TokenEvent) error {
	return p.publish(ctx, channel, "token", ev)
}

func (p *Publisher) PublishMessage(ctx context.Context, channel string, ev model.MessageEvent) error {
	kind := "delta"
	if ev.IsComplete {
		kind = "complete"
	}
	return p.publish(ctx, channel, kind, ev)
}

func (p *Publisher) publish(ctx context.Context, channel, kind string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", kind, err)
	}
	err = p.bus.Publish(ctx, channel, b)
	metrics.IncEventPublished(kind, err)
	if err != nil {
		return fmt.Errorf("publish %s event to %s: %w", kind, channel, err)
	}
	return nil
}
