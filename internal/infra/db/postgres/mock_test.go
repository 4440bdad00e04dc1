//go:build !integration

package postgres

import (
	"context"
	"time"

	"uvian-worker/internal/domain/model"
	"uvian-worker/internal/domain/ports/repository"
	red "uvian-worker/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

type mockInnerConversationRepo struct {
	FindByIDFunc  func(ctx context.Context, tx repository.Tx, id string) (*model.Conversation, error)
	CreateFunc    func(ctx context.Context, tx repository.Tx, c *model.Conversation) error
	AddMemberFunc func(ctx context.Context, tx repository.Tx, m *model.ConversationMember) error
}

func (m *mockInnerConversationRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Conversation, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerConversationRepo) Create(ctx context.Context, tx repository.Tx, c *model.Conversation) error {
	return m.CreateFunc(ctx, tx, c)
}
func (m *mockInnerConversationRepo) AddMember(ctx context.Context, tx repository.Tx, mem *model.ConversationMember) error {
	return m.AddMemberFunc(ctx, tx, mem)
}

// mockRedisClient implements red.RedisClient; nil funcs behave like an
// empty cache.
type mockRedisClient struct {
	GetFunc func(ctx context.Context, key string) (string, error)
	SetFunc func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc func(ctx context.Context, keys ...string) error
}

var _ red.RedisClient = (*mockRedisClient)(nil)

func (m *mockRedisClient) Ping(ctx context.Context) error { return nil }
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, expiration)
	}
	return nil
}
func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return "", errRedisNil
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc != nil {
		return m.DelFunc(ctx, keys...)
	}
	return nil
}
func (m *mockRedisClient) Publish(ctx context.Context, channel string, payload []byte) error {
	return nil
}
func (m *mockRedisClient) Close() error { return nil }
