package postgres

import (
	"context"
	"fmt"

	"uvian-worker/internal/domain"
	"uvian-worker/internal/domain/model"
	"uvian-worker/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.MessageRepository = (*PostgresMessageRepo)(nil)

type PostgresMessageRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresMessageRepo(pool *pgxpool.Pool) *PostgresMessageRepo {
	return &PostgresMessageRepo{pool: pool}
}

func (r *PostgresMessageRepo) ListByConversation(ctx context.Context, tx repository.Tx, conversationID string) ([]*model.Message, error) {
	const q = `
SELECT id, conversation_id, sender_id, content, role, created_at, updated_at
  FROM messages
 WHERE conversation_id = $1
 ORDER BY created_at ASC, id ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*model.Message
	for rows.Next() {
		var m model.Message
		var role string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &role, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
		}
		m.Role = model.Role(role)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (r *PostgresMessageRepo) Insert(ctx context.Context, tx repository.Tx, m *model.Message) error {
	const q = `
INSERT INTO messages (id, conversation_id, sender_id, content, role, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);`
	_, err := execSQL(ctx, r.pool, tx, q,
		m.ID, m.ConversationID, m.SenderID, m.Content, string(m.Role), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return domain.ErrAlreadyExists
		case isForeignKeyViolation(err):
			return domain.ErrConversationNotFound
		}
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}
