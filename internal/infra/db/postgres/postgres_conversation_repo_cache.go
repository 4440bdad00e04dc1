package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"uvian-worker/internal/domain/model"
	"uvian-worker/internal/domain/ports/repository"
	"uvian-worker/internal/infra/metrics"
	red "uvian-worker/internal/infra/redis"

	"github.com/rs/zerolog"
)

var _ repository.ConversationRepository = (*conversationRepoCacheDecorator)(nil)

type conversationRepoCacheDecorator struct {
	inner repository.ConversationRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

// NewConversationRepoCacheDecorator caches FindByID outside transactions.
// Writes drop the cached entry.
func NewConversationRepoCacheDecorator(inner repository.ConversationRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.ConversationRepository {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &conversationRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: logger}
}

func conversationKey(id string) string { return fmt.Sprintf("cache:conversation:%s", id) }

func (d *conversationRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Conversation, error) {
	if tx != nil {
		return d.inner.FindByID(ctx, tx, id)
	}
	key := conversationKey(id)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var c model.Conversation
		if json.Unmarshal([]byte(val), &c) == nil {
			metrics.IncCacheLookup("conversation", "hit")
			return &c, nil
		}
		metrics.IncCacheLookup("conversation", "miss")
	} else if red.IsNil(err) {
		metrics.IncCacheLookup("conversation", "miss")
	} else {
		metrics.IncCacheLookup("conversation", "error")
		d.log.Warn().Err(err).Str("key", key).Msg("conversation cache read failed")
	}

	c, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(c); err == nil {
		if err := d.cache.Set(ctx, key, b, d.ttl); err != nil {
			d.log.Warn().Err(err).Str("key", key).Msg("conversation cache write failed")
		}
	}
	return c, nil
}

func (d *conversationRepoCacheDecorator) Create(ctx context.Context, tx repository.Tx, c *model.Conversation) error {
	d.invalidate(ctx, c.ID)
	return d.inner.Create(ctx, tx, c)
}

func (d *conversationRepoCacheDecorator) AddMember(ctx context.Context, tx repository.Tx, m *model.ConversationMember) error {
	if err := d.inner.AddMember(ctx, tx, m); err != nil {
		return err
	}
	d.invalidate(ctx, m.ConversationID)
	return nil
}

func (d *conversationRepoCacheDecorator) invalidate(ctx context.Context, id string) {
	if err := d.cache.Del(ctx, conversationKey(id)); err != nil {
		d.log.Warn().Err(err).Str("conversation_id", id).Msg("conversation cache invalidation failed")
	}
}
