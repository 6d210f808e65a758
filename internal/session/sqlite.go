package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists sessions in SQLite so suspended turns survive a server
// restart. Per-session locking still lives in process memory: a single relay
// instance owns the database.
type SQLiteStore struct {
	db    *sql.DB
	locks *sessionLocks
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite creates a SQLite-backed session store at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode keeps concurrent turn handlers from tripping over each other.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
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

	store := &SQLiteStore{db: db, locks: newSessionLocks()}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS relay_sessions (
		session_id TEXT PRIMARY KEY,
		conversation_id TEXT,
		pending_call_id TEXT,
		pending_auth_uri TEXT,
		pending_auth_config TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_relay_sessions_updated ON relay_sessions(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get retrieves a session, or (nil, nil) if it does not exist.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Session, error) {
	query := `
		SELECT session_id, conversation_id, pending_call_id, pending_auth_uri,
		       pending_auth_config, created_at, updated_at
		FROM relay_sessions WHERE session_id = ?`

	row := s.db.QueryRowContext(ctx, query, id)

	var sess Session
	var conversationID, callID, authURI, authConfig sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&sess.ID, &conversationID, &callID, &authURI, &authConfig, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	sess.ConversationID = conversationID.String
	sess.CreatedAt = time.Unix(createdAt, 0)
	sess.UpdatedAt = time.Unix(updatedAt, 0)

	if callID.Valid && authConfig.Valid {
		var cfg map[string]any
		if err := json.Unmarshal([]byte(authConfig.String), &cfg); err != nil {
			return nil, fmt.Errorf("decode pending auth config: %w", err)
		}
		sess.PendingAuth = &PendingAuth{
			FunctionCallID:   callID.String,
			AuthorizationURI: authURI.String,
			AuthConfig:       cfg,
		}
	}

	return &sess, nil
}

// CreateOrGet returns the session for id, creating an empty record on first
// call.
func (s *SQLiteStore) CreateOrGet(ctx context.Context, id string) (*Session, error) {
	now := time.Now().Unix()
	query := `
		INSERT INTO relay_sessions (session_id, created_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query, id, now, now); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s.Get(ctx, id)
}

// SetConversationID records the remote conversation id; the first write wins.
func (s *SQLiteStore) SetConversationID(ctx context.Context, id, conversationID string) error {
	query := `
		UPDATE relay_sessions SET conversation_id = ?, updated_at = ?
		WHERE session_id = ? AND (conversation_id IS NULL OR conversation_id = '')`
	result, err := s.db.ExecContext(ctx, query, conversationID, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("set conversation id: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		sess, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if sess == nil {
			return ErrNotFound
		}
		// Already set: the stored id stands.
	}
	return nil
}

// SetPendingAuth marks the session's in-flight turn as suspended.
func (s *SQLiteStore) SetPendingAuth(ctx context.Context, id string, pending *PendingAuth) error {
	cfg, err := json.Marshal(pending.AuthConfig)
	if err != nil {
		return fmt.Errorf("encode pending auth config: %w", err)
	}
	query := `
		UPDATE relay_sessions
		SET pending_call_id = ?, pending_auth_uri = ?, pending_auth_config = ?, updated_at = ?
		WHERE session_id = ?`
	result, err := s.db.ExecContext(ctx, query,
		pending.FunctionCallID, pending.AuthorizationURI, string(cfg), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("set pending auth: %w", err)
	}
	return requireRow(result)
}

// ClearPendingAuth removes the suspension marker.
func (s *SQLiteStore) ClearPendingAuth(ctx context.Context, id string) error {
	query := `
		UPDATE relay_sessions
		SET pending_call_id = NULL, pending_auth_uri = NULL, pending_auth_config = NULL, updated_at = ?
		WHERE session_id = ?`
	result, err := s.db.ExecContext(ctx, query, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("clear pending auth: %w", err)
	}
	return requireRow(result)
}

// Delete removes the session and any pending auth.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM relay_sessions WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// CleanupExpired removes sessions idle longer than ttl.
func (s *SQLiteStore) CleanupExpired(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()
	result, err := s.db.ExecContext(ctx, `DELETE FROM relay_sessions WHERE updated_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired sessions: %w", err)
	}
	return result.RowsAffected()
}

// LockSession acquires the per-session mutex.
func (s *SQLiteStore) LockSession(id string) func() {
	return s.locks.lock(id)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("session update affected 0 rows")
		return ErrNotFound
	}
	return nil
}
