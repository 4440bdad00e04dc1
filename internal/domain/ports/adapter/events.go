package adapter

import (
	"context"

	"uvian-worker/internal/domain/model"
)

// PubSub is the raw publish transport.
type PubSub interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// EventPublisher emits the two public event shapes. Callers choose which.
type EventPublisher interface {
	PublishToken(ctx context.Context, channel string, ev model.TokenEvent) error
	PublishMessage(ctx context.Context, channel string, ev model.MessageEvent) error
}
