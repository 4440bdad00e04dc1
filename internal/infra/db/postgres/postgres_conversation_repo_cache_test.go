//go:build !integration

package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"uvian-worker/internal/domain/model"
	"uvian-worker/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

var errRedisNil = redis.Nil

func TestConversationRepoCacheDecorator(t *testing.T) {
	ctx := context.Background()
	nop := zerolog.Nop()
	conv := model.NewConversation("c-1", "Support")
	convJSON, _ := json.Marshal(conv)

	t.Run("FindByID should return from cache on hit", func(t *testing.T) {
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				if key != "cache:conversation:c-1" {
					t.Fatalf("unexpected key %q", key)
				}
				return string(convJSON), nil
			},
		}
		innerCalled := false
		inner := &mockInnerConversationRepo{
			FindByIDFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.Conversation, error) {
				innerCalled = true
				return nil, nil
			},
		}

		d := NewConversationRepoCacheDecorator(inner, mockRedis, time.Minute, &nop)
		got, err := d.FindByID(ctx, nil, "c-1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if innerCalled {
			t.Error("inner repository should not be called on a cache hit")
		}
		if got == nil || got.ID != "c-1" || got.Title != "Support" {
			t.Errorf("wrong conversation from cache: %+v", got)
		}
	})

	t.Run("FindByID should fill the cache on miss", func(t *testing.T) {
		var setKey string
		var setTTL time.Duration
		mockRedis := &mockRedisClient{
			SetFunc: func(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
				setKey, setTTL = key, ttl
				return nil
			},
		}
		inner := &mockInnerConversationRepo{
			FindByIDFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.Conversation, error) {
				return conv, nil
			},
		}

		d := NewConversationRepoCacheDecorator(inner, mockRedis, time.Minute, &nop)
		if _, err := d.FindByID(ctx, nil, "c-1"); err != nil {
			t.Fatal(err)
		}
		if setKey != "cache:conversation:c-1" || setTTL != time.Minute {
			t.Errorf("cache not filled: key=%q ttl=%v", setKey, setTTL)
		}
	})

	t.Run("FindByID inside a transaction bypasses the cache", func(t *testing.T) {
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				t.Fatal("cache must not be read inside a transaction")
				return "", nil
			},
		}
		inner := &mockInnerConversationRepo{
			FindByIDFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.Conversation, error) {
				return conv, nil
			},
		}
		d := NewConversationRepoCacheDecorator(inner, mockRedis, time.Minute, &nop)
		if _, err := d.FindByID(ctx, struct{}{}, "c-1"); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("AddMember should invalidate the cache", func(t *testing.T) {
		var deleted []string
		mockRedis := &mockRedisClient{
			DelFunc: func(ctx context.Context, keys ...string) error {
				deleted = append(deleted, keys...)
				return nil
			},
		}
		inner := &mockInnerConversationRepo{
			AddMemberFunc: func(ctx context.Context, tx repository.Tx, m *model.ConversationMember) error {
				return nil
			},
		}
		d := NewConversationRepoCacheDecorator(inner, mockRedis, time.Minute, &nop)
		err := d.AddMember(ctx, nil, &model.ConversationMember{ConversationID: "c-1", ProfileID: "p", Role: model.MemberRoleMember})
		if err != nil {
			t.Fatal(err)
		}
		if len(deleted) != 1 || deleted[0] != "cache:conversation:c-1" {
			t.Fatalf("expected invalidation of c-1, got %v", deleted)
		}
	})
}
