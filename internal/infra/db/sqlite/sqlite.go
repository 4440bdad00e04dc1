// Package sqlite is a single-file store for local runs and tests. It
// implements the job, conversation and message repositories.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// register sqlite driver
	_ "modernc.org/sqlite"

	"uvian-worker/internal/domain"
	"uvian-worker/internal/domain/model"
	"uvian-worker/internal/domain/ports/repository"
	"uvian-worker/internal/infra/metrics"
)

// Fixed width so text ordering matches time ordering.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

var (
	_ repository.JobRepository          = (*Store)(nil)
	_ repository.MessageRepository      = (*Store)(nil)
	_ repository.ConversationRepository = conversationView{}
)

type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at path. ":memory:" is accepted.
func New(path string) (*Store, error) {
	path = strings.TrimPrefix(path, "sqlite://")
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		// Each connection would get its own empty database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'queued',
	input TEXT NOT NULL DEFAULT '{}',
	output TEXT,
	error_message TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	started_at TEXT,
	completed_at TEXT
);
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS conversation_members (
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	profile_id TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'member',
	created_at TEXT NOT NULL,
	PRIMARY KEY (conversation_id, profile_id)
);
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	sender_id TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages(conversation_id, created_at);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) conn(tx repository.Tx) (execer, error) {
	switch v := tx.(type) {
	case nil:
		return s.db, nil
	case *sql.Tx:
		return v, nil
	default:
		return nil, domain.ErrInvalidExecContext
	}
}

// WithTx runs fn inside a database/sql transaction passed as repository.Tx.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

// ---- jobs ----

func (s *Store) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	ex, err := s.conn(tx)
	if err != nil {
		return err
	}
	input, err := encodeJSON(job.Input)
	if err != nil {
		return err
	}
	if input == nil {
		empty := "{}"
		input = &empty
	}
	_, err = ex.ExecContext(ctx, `
INSERT INTO jobs(id, type, status, input, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?)`,
		job.ID, job.Type, string(job.Status), *input, ts(job.CreatedAt), ts(job.UpdatedAt))
	if err != nil {
		if isConstraint(err, "UNIQUE") {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	ex, err := s.conn(tx)
	if err != nil {
		return nil, err
	}
	row := ex.QueryRowContext(ctx, `
SELECT id, type, status, input, output, error_message, created_at, updated_at, started_at, completed_at
FROM jobs WHERE id = ?`, id)

	var (
		j                  model.Job
		status, input      string
		created, updated   string
		output, errText    sql.NullString
		started, completed sql.NullString
	)
	if err := row.Scan(&j.ID, &j.Type, &status, &input, &output, &errText, &created, &updated, &started, &completed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	j.Status = model.JobStatus(status)
	j.ErrorMessage = errText.String
	if j.Input, err = decodeJSON(input); err != nil {
		return nil, err
	}
	if output.Valid {
		if j.Output, err = decodeJSON(output.String); err != nil {
			return nil, err
		}
	}
	var tp tsParser
	j.CreatedAt = tp.parse(created)
	j.UpdatedAt = tp.parse(updated)
	j.StartedAt = tp.parseNull(started)
	j.CompletedAt = tp.parseNull(completed)
	if tp.err != nil {
		return nil, tp.err
	}
	return &j, nil
}

func (s *Store) MarkProcessing(ctx context.Context, tx repository.Tx, id string) error {
	now := ts(time.Now())
	return s.updateJob(ctx, tx, `
UPDATE jobs SET status = 'processing', started_at = ?, updated_at = ?, error_message = NULL
WHERE id = ?`, now, now, id)
}

func (s *Store) MarkCompleted(ctx context.Context, tx repository.Tx, id string, output map[string]any) error {
	out, err := encodeJSON(output)
	if err != nil {
		return err
	}
	now := ts(time.Now())
	return s.updateJob(ctx, tx, `
UPDATE jobs SET status = 'completed', output = ?, completed_at = ?, updated_at = ?
WHERE id = ?`, out, now, now, id)
}

func (s *Store) MarkFailed(ctx context.Context, tx repository.Tx, id string, errMsg string, output map[string]any) error {
	out, err := encodeJSON(output)
	if err != nil {
		return err
	}
	now := ts(time.Now())
	return s.updateJob(ctx, tx, `
UPDATE jobs SET status = 'failed', error_message = ?, output = ?, completed_at = ?, updated_at = ?
WHERE id = ?`, errMsg, out, now, now, id)
}

func (s *Store) FailStale(ctx context.Context, tx repository.Tx, startedBefore time.Time, errMsg string) (int64, error) {
	out, err := encodeJSON(map[string]any{"error": errMsg})
	if err != nil {
		return 0, err
	}
	ex, err := s.conn(tx)
	if err != nil {
		return 0, err
	}
	now := ts(time.Now())
	res, err := ex.ExecContext(ctx, `
UPDATE jobs SET status = 'failed', error_message = ?, output = ?, completed_at = ?, updated_at = ?
WHERE status = 'processing' AND started_at < ?`, errMsg, out, now, now, ts(startedBefore))
	if err != nil {
		return 0, fmt.Errorf("fail stale jobs: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) updateJob(ctx context.Context, tx repository.Tx, q string, args ...any) error {
	ex, err := s.conn(tx)
	if err != nil {
		return err
	}
	res, err := ex.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ---- conversations ----

// Conversations adapts the store to repository.ConversationRepository;
// Store's own FindByID and Create are the job methods.
func (s *Store) Conversations() repository.ConversationRepository { return conversationView{s} }

type conversationView struct{ s *Store }

func (v conversationView) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Conversation, error) {
	return v.s.FindConversation(ctx, tx, id)
}

func (v conversationView) Create(ctx context.Context, tx repository.Tx, c *model.Conversation) error {
	return v.s.CreateConversation(ctx, tx, c)
}

func (v conversationView) AddMember(ctx context.Context, tx repository.Tx, m *model.ConversationMember) error {
	return v.s.AddMember(ctx, tx, m)
}

func (s *Store) FindConversation(ctx context.Context, tx repository.Tx, id string) (*model.Conversation, error) {
	ex, err := s.conn(tx)
	if err != nil {
		return nil, err
	}
	var c model.Conversation
	var created, updated string
	err = ex.QueryRowContext(ctx, `SELECT id, title, created_at, updated_at FROM conversations WHERE id = ?`, id).
		Scan(&c.ID, &c.Title, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	var tp tsParser
	c.CreatedAt, c.UpdatedAt = tp.parse(created), tp.parse(updated)
	if tp.err != nil {
		return nil, tp.err
	}

	rows, err := ex.QueryContext(ctx, `
SELECT conversation_id, profile_id, role, created_at
FROM conversation_members WHERE conversation_id = ?
ORDER BY created_at, profile_id`, id)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m model.ConversationMember
		var role, at string
		if err := rows.Scan(&m.ConversationID, &m.ProfileID, &role, &at); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
		}
		m.Role = model.MemberRole(role)
		m.CreatedAt = tp.parse(at)
		if tp.err != nil {
			return nil, tp.err
		}
		c.Members = append(c.Members, m)
	}
	return &c, rows.Err()
}

func (s *Store) CreateConversation(ctx context.Context, tx repository.Tx, c *model.Conversation) error {
	ex, err := s.conn(tx)
	if err != nil {
		return err
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	_, err = ex.ExecContext(ctx, `INSERT INTO conversations(id, title, created_at, updated_at) VALUES(?, ?, ?, ?)`,
		c.ID, c.Title, ts(c.CreatedAt), ts(c.UpdatedAt))
	if err != nil {
		if isConstraint(err, "UNIQUE") {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func (s *Store) AddMember(ctx context.Context, tx repository.Tx, m *model.ConversationMember) error {
	ex, err := s.conn(tx)
	if err != nil {
		return err
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err = ex.ExecContext(ctx, `
INSERT INTO conversation_members(conversation_id, profile_id, role, created_at)
VALUES(?, ?, ?, ?)
ON CONFLICT(conversation_id, profile_id) DO UPDATE SET role = excluded.role`,
		m.ConversationID, m.ProfileID, string(m.Role), ts(m.CreatedAt))
	if err != nil {
		if isConstraint(err, "FOREIGN KEY") {
			return domain.ErrConversationNotFound
		}
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// ---- messages ----

func (s *Store) ListByConversation(ctx context.Context, tx repository.Tx, conversationID string) ([]*model.Message, error) {
	ex, err := s.conn(tx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.QueryContext(ctx, `
SELECT id, conversation_id, sender_id, content, role, created_at, updated_at
FROM messages WHERE conversation_id = ?
ORDER BY created_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*model.Message
	var tp tsParser
	for rows.Next() {
		var m model.Message
		var role, created, updated string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &role, &created, &updated); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
		}
		m.Role = model.Role(role)
		m.CreatedAt, m.UpdatedAt = tp.parse(created), tp.parse(updated)
		if tp.err != nil {
			return nil, tp.err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *Store) Insert(ctx context.Context, tx repository.Tx, m *model.Message) error {
	ex, err := s.conn(tx)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, `
INSERT INTO messages(id, conversation_id, sender_id, content, role, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.SenderID, m.Content, string(m.Role), ts(m.CreatedAt), ts(m.UpdatedAt))
	if err != nil {
		switch {
		case isConstraint(err, "UNIQUE"):
			return domain.ErrAlreadyExists
		case isConstraint(err, "FOREIGN KEY"):
			return domain.ErrConversationNotFound
		}
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// SampleStats exports connection gauges every interval until ctx ends.
func (s *Store) SampleStats(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		st := s.db.Stats()
		metrics.SetDBConnections("sqlite", st.OpenConnections, st.Idle, st.InUse)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// ---- helpers ----

func ts(t time.Time) string { return t.UTC().Format(tsLayout) }

// tsParser keeps the first timestamp column that failed to parse.
type tsParser struct {
	err error
}

func (p *tsParser) parse(s string) time.Time {
	t, err := time.Parse(tsLayout, s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%w: timestamp %q: %v", domain.ErrReadDatabaseRow, s, err)
	}
	return t
}

func (p *tsParser) parseNull(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := p.parse(s.String)
	return &t
}

func encodeJSON(m map[string]any) (*string, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode json column: %w", err)
	}
	s := string(b)
	return &s, nil
}

func decodeJSON(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	return m, nil
}

// isConstraint matches sqlite's "constraint failed: UNIQUE ..." messages.
func isConstraint(err error, kind string) bool {
	msg := err.Error()
	return strings.Contains(msg, "constraint failed") && strings.Contains(msg, kind)
}
