package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/haasonsaas/nexus/pkg/models"
)

// SQLiteStore persists sessions and history in a local sqlite database
// with WAL journaling. Messages are stored as JSON rows so tool calls and
// attachments round-trip without a per-field schema.
type SQLiteStore struct {
	db         *sql.DB
	maxHistory int
}

// OpenSQLite opens (creating if needed) a sqlite-backed session store at
// path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	store := &SQLiteStore{db: db, maxHistory: DefaultMaxHistory}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			channel TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			key TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS session_messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_session_messages_session
			ON session_messages(session_id, seq);
	`)
	if err != nil {
		return fmt.Errorf("migrate session db: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// SetMaxHistory overrides the per-session turn budget.
func (s *SQLiteStore) SetMaxHistory(max int) { s.maxHistory = max }

func (s *SQLiteStore) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	meta, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("encode session metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, agent_id, channel, channel_id, key, title, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.AgentID, string(session.Channel), session.ChannelID,
		session.Key, session.Title, string(meta),
		session.CreatedAt.UnixMilli(), session.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Session, error) {
	return s.getWhere(ctx, "id = ?", id)
}

func (s *SQLiteStore) GetByKey(ctx context.Context, key string) (*models.Session, error) {
	return s.getWhere(ctx, "key = ?", key)
}

func (s *SQLiteStore) getWhere(ctx context.Context, where string, arg any) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, channel, channel_id, key, title, metadata, created_at, updated_at
		FROM sessions WHERE `+where, arg)
	return scanSession(row)
}

func scanSession(row *sql.Row) (*models.Session, error) {
	var session models.Session
	var channel, meta string
	var created, updated int64
	err := row.Scan(&session.ID, &session.AgentID, &channel, &session.ChannelID,
		&session.Key, &session.Title, &meta, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	session.Channel = models.ChannelType(channel)
	session.CreatedAt = time.UnixMilli(created)
	session.UpdatedAt = time.UnixMilli(updated)
	if meta != "" && meta != "{}" {
		if err := json.Unmarshal([]byte(meta), &session.Metadata); err != nil {
			return nil, fmt.Errorf("decode session metadata: %w", err)
		}
	}
	return &session, nil
}

func (s *SQLiteStore) Update(ctx context.Context, session *models.Session) error {
	session.UpdatedAt = time.Now()
	meta, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("encode session metadata: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET agent_id = ?, channel = ?, channel_id = ?, key = ?, title = ?, metadata = ?, updated_at = ?
		WHERE id = ?`,
		session.AgentID, string(session.Channel), session.ChannelID, session.Key,
		session.Title, string(meta), session.UpdatedAt.UnixMilli(), session.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_messages WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete session messages: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetOrCreate(ctx context.Context, key string, agentID string, channel models.ChannelType, channelID string) (*models.Session, error) {
	if existing, err := s.GetByKey(ctx, key); err == nil {
		return existing, nil
	} else if err != ErrNotFound {
		return nil, err
	}
	session := &models.Session{
		AgentID:   agentID,
		Channel:   channel,
		ChannelID: channelID,
		Key:       key,
	}
	if err := s.Create(ctx, session); err != nil {
		// Lost a create race; the row exists now.
		if existing, getErr := s.GetByKey(ctx, key); getErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return session, nil
}

func (s *SQLiteStore) List(ctx context.Context, agentID string, opts ListOptions) ([]*models.Session, error) {
	query := `SELECT id, agent_id, channel, channel_id, key, title, metadata, created_at, updated_at FROM sessions WHERE 1=1`
	args := []any{}
	if agentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, agentID)
	}
	if opts.Channel != "" {
		query += ` AND channel = ?`
		args = append(args, string(opts.Channel))
	}
	query += ` ORDER BY updated_at DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, opts.Offset)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		var session models.Session
		var channel, meta string
		var created, updated int64
		if err := rows.Scan(&session.ID, &session.AgentID, &channel, &session.ChannelID,
			&session.Key, &session.Title, &meta, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		session.Channel = models.ChannelType(channel)
		session.CreatedAt = time.UnixMilli(created)
		session.UpdatedAt = time.UnixMilli(updated)
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &session.Metadata); err != nil {
				return nil, fmt.Errorf("decode session metadata: %w", err)
			}
		}
		out = append(out, &session)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	created := msg.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_messages (session_id, role, payload, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, string(msg.Role), string(payload), created.UnixMilli())
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return s.evict(ctx, sessionID)
}

// evict enforces the turn budget: oldest non-system rows past the budget
// are deleted; system rows are never evicted.
func (s *SQLiteStore) evict(ctx context.Context, sessionID string) error {
	if s.maxHistory <= 0 {
		return nil
	}
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM session_messages WHERE session_id = ?`, sessionID).Scan(&count); err != nil {
		return fmt.Errorf("count messages: %w", err)
	}
	excess := count - s.maxHistory
	if excess <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM session_messages WHERE seq IN (
			SELECT seq FROM session_messages
			WHERE session_id = ? AND role != 'system'
			ORDER BY seq ASC LIMIT ?
		)`, sessionID, excess)
	if err != nil {
		return fmt.Errorf("evict messages: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetHistory(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	query := `SELECT payload FROM session_messages WHERE session_id = ? ORDER BY seq DESC`
	args := []any{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		var msg models.Message
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Rows were read newest-first; return oldest-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
