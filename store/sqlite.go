package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/scholarmesh/scholarmesh/core"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a SQLite-backed store at the given path, creating the
// parent directory and schema as needed.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// modernc.org/sqlite only honors _pragma-style DSN parameters, and they
	// apply per connection, so every pooled connection gets WAL and a busy
	// timeout. Concurrent independent sessions then queue on the write lock
	// instead of failing with SQLITE_BUSY.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		task_type TEXT,
		status TEXT NOT NULL,
		state BLOB,
		metadata_json TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);

	CREATE TABLE IF NOT EXISTS messages (
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		agent TEXT,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, seq)
	);

	CREATE TABLE IF NOT EXISTS long_term_memory (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		value BLOB,
		expires_at INTEGER,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (namespace, key)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// CreateSession implements Store.
func (s *SQLiteStore) CreateSession(ctx context.Context, rec *core.SessionRecord) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
	INSERT INTO sessions (session_id, user_id, task_type, status, state, metadata_json, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		rec.SessionID, rec.UserID, rec.TaskType, string(rec.Status),
		rec.State, string(meta), rec.CreatedAt.Unix(), rec.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession implements Store.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*core.SessionRecord, error) {
	query := `
	SELECT session_id, user_id, task_type, status, state, metadata_json, created_at, updated_at
	FROM sessions WHERE session_id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID)

	var rec core.SessionRecord
	var taskType, status, metaJSON sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&rec.SessionID, &rec.UserID, &taskType, &status, &rec.State, &metaJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	rec.TaskType = taskType.String
	rec.Status = core.Status(status.String)
	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	rec.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &rec, nil
}

// SaveSession implements Store as an upsert.
func (s *SQLiteStore) SaveSession(ctx context.Context, rec *core.SessionRecord) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
	INSERT INTO sessions (session_id, user_id, task_type, status, state, metadata_json, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		task_type = excluded.task_type,
		status = excluded.status,
		state = excluded.state,
		metadata_json = excluded.metadata_json,
		updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		rec.SessionID, rec.UserID, rec.TaskType, string(rec.Status),
		rec.State, string(meta), rec.CreatedAt.Unix(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// AddMessage implements Store. The sequence number is computed inside the
// INSERT from the last persisted row for the session, so numbering
// survives restarts under the single-writer-per-session assumption.
func (s *SQLiteStore) AddMessage(ctx context.Context, sessionID, role, content, agent string) (*core.MessageRecord, error) {
	now := time.Now().UTC()
	query := `
	INSERT INTO messages (session_id, seq, role, content, agent, created_at)
	VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = ?), ?, ?, ?, ?)
	RETURNING seq`

	var seq int64
	err := s.db.QueryRowContext(ctx, query, sessionID, sessionID, role, content, agent, now.Unix()).Scan(&seq)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	return &core.MessageRecord{
		SessionID: sessionID,
		Seq:       seq,
		Role:      role,
		Content:   content,
		Agent:     agent,
		CreatedAt: now,
	}, nil
}

// Messages implements Store.
func (s *SQLiteStore) Messages(ctx context.Context, sessionID string, limit int) ([]core.MessageRecord, error) {
	query := `
	SELECT session_id, seq, role, content, agent, created_at
	FROM messages WHERE session_id = ? ORDER BY seq DESC`
	args := []any{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []core.MessageRecord
	for rows.Next() {
		var rec core.MessageRecord
		var agent sql.NullString
		var createdAt int64
		if err := rows.Scan(&rec.SessionID, &rec.Seq, &rec.Role, &rec.Content, &agent, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		rec.Agent = agent.String
		rec.CreatedAt = time.Unix(createdAt, 0).UTC()
		msgs = append(msgs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// Rows came newest-first for the LIMIT; flip back to ascending seq.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// PutMemory implements Store.
func (s *SQLiteStore) PutMemory(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	var expiresAt any
	if ttl != 0 {
		expiresAt = time.Now().Add(ttl).Unix()
	}

	query := `
	INSERT INTO long_term_memory (namespace, key, value, expires_at, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(namespace, key) DO UPDATE SET
		value = excluded.value,
		expires_at = excluded.expires_at`

	_, err := s.db.ExecContext(ctx, query, namespace, key, value, expiresAt, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("upsert memory: %w", err)
	}
	return nil
}

// GetMemory implements Store. Expired entries are deleted on read and
// reported as absent.
func (s *SQLiteStore) GetMemory(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	query := `SELECT value, expires_at FROM long_term_memory WHERE namespace = ? AND key = ?`
	row := s.db.QueryRowContext(ctx, query, namespace, key)

	var value []byte
	var expiresAt sql.NullInt64
	err := row.Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("scan memory row: %w", err)
	}

	if expiresAt.Valid && time.Now().Unix() > expiresAt.Int64 {
		// Lazy expiry; a failed delete only delays the next one.
		_, _ = s.db.ExecContext(ctx, `DELETE FROM long_term_memory WHERE namespace = ? AND key = ?`, namespace, key)
		return nil, false, nil
	}
	return value, true, nil
}

// DeleteMemory implements Store.
func (s *SQLiteStore) DeleteMemory(ctx context.Context, namespace, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM long_term_memory WHERE namespace = ? AND key = ?`, namespace, key)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	return nil
}

// Ping implements Store.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
