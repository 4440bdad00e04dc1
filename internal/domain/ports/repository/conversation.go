package repository

import (
	"context"

	"uvian-worker/internal/domain/model"
)

type ConversationRepository interface {
	// FindByID returns the conversation with its members.
	FindByID(ctx context.Context, tx Tx, id string) (*model.Conversation, error)
	Create(ctx context.Context, tx Tx, c *model.Conversation) error
	AddMember(ctx context.Context, tx Tx, m *model.ConversationMember) error
}
