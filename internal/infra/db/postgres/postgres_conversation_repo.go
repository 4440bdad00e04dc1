package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"uvian-worker/internal/domain"
	"uvian-worker/internal/domain/model"
	"uvian-worker/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.ConversationRepository = (*PostgresConversationRepo)(nil)

type PostgresConversationRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresConversationRepo(pool *pgxpool.Pool) *PostgresConversationRepo {
	return &PostgresConversationRepo{pool: pool}
}

// FindByID loads the conversation with its members.
func (r *PostgresConversationRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Conversation, error) {
	const q = `
SELECT id, title, created_at, updated_at
  FROM conversations
 WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	var c model.Conversation
	if err := row.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}

	const mq = `
SELECT conversation_id, profile_id, role, created_at
  FROM conversation_members
 WHERE conversation_id = $1
 ORDER BY created_at, profile_id;`
	rows, err := queryRows(ctx, r.pool, tx, mq, id)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m model.ConversationMember
		var role string
		if err := rows.Scan(&m.ConversationID, &m.ProfileID, &role, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
		}
		m.Role = model.MemberRole(role)
		c.Members = append(c.Members, m)
	}
	return &c, rows.Err()
}

func (r *PostgresConversationRepo) Create(ctx context.Context, tx repository.Tx, c *model.Conversation) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	const q = `
INSERT INTO conversations (id, title, created_at, updated_at)
VALUES ($1, $2, $3, $4);`
	if _, err := execSQL(ctx, r.pool, tx, q, c.ID, c.Title, c.CreatedAt, c.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

// AddMember upserts; an existing member gets the new role.
func (r *PostgresConversationRepo) AddMember(ctx context.Context, tx repository.Tx, m *model.ConversationMember) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	const q = `
INSERT INTO conversation_members (conversation_id, profile_id, role, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (conversation_id, profile_id) DO UPDATE
  SET role = EXCLUDED.role;`
	if _, err := execSQL(ctx, r.pool, tx, q, m.ConversationID, m.ProfileID, string(m.Role), m.CreatedAt); err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrConversationNotFound
		}
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}
