package repository

import (
	"context"

	"uvian-worker/internal/domain/model"
)

type MessageRepository interface {
	// ListByConversation returns messages ordered by creation time ascending.
	ListByConversation(ctx context.Context, tx Tx, conversationID string) ([]*model.Message, error)
	Insert(ctx context.Context, tx Tx, m *model.Message) error
}
