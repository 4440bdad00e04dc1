// File: internal/infra/redis/pubsub.go
package redis

import (
	"context"
	"fmt"

	"uvian-worker/internal/domain/ports/adapter"
)

var _ adapter.PubSub = (*PubSub)(nil)

// PubSub publishes and follows Redis channels.
type PubSub struct {
	c *Client
}

func NewPubSub(c *Client) *PubSub { return &PubSub{c: c} }

func (p *PubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.c.Publish(ctx, channel, payload)
}

// Subscribe delivers payloads from channel until ctx ends. The returned
// channel is closed when the subscription stops.
func (p *PubSub) Subscribe(ctx context.Context, channel string) (<-chan string, error) {
	sub := p.c.cli.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer sub.Close()
		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
