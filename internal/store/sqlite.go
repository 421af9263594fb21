package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/reelbot/internal/domain"
	"github.com/ashureev/reelbot/internal/resilience"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	retry *resilience.Executor[sql.Result]
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
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

	store := &SQLiteStore{
		db: db,
		// Exponential backoff on SQLITE_BUSY: 100ms, 200ms, 400ms.
		retry: resilience.New[sql.Result](resilience.Config{
			MaxRetries:  3,
			BaseDelay:   100 * time.Millisecond,
			MaxDelay:    400 * time.Millisecond,
			ShouldRetry: isSQLiteConflict,
		}),
	}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS chat_sessions (
		user_id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		document TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_sessions_state_updated ON chat_sessions(state, updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// isSQLiteConflict reports SQLITE_BUSY and "database is locked" errors, which warrant a retry.
func isSQLiteConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.retry.Run(ctx, func(ctx context.Context) (sql.Result, error) {
		return s.db.ExecContext(ctx, query, args...)
	})
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetSession retrieves a session by user ID.
func (s *SQLiteStore) GetSession(ctx context.Context, userID string) (*domain.UserSession, error) {
	query := `SELECT document, updated_at FROM chat_sessions WHERE user_id = ?`

	var document string
	var updatedAt int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&document, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	var session domain.UserSession
	if err := json.Unmarshal([]byte(document), &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", userID, err)
	}
	// The sweeper rewrites state in SQL, so the column is authoritative.
	session.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &session, nil
}

// SaveSession creates or replaces a session document.
func (s *SQLiteStore) SaveSession(ctx context.Context, session *domain.UserSession) error {
	document, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	updatedAt := session.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	query := `
	INSERT INTO chat_sessions (user_id, state, document, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		state = excluded.state,
		document = excluded.document,
		updated_at = excluded.updated_at`

	if _, err := s.exec(ctx, query,
		session.UserID, string(session.State), string(document),
		session.CreatedAt.UnixMilli(), updatedAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// DeleteSession removes a session.
func (s *SQLiteStore) DeleteSession(ctx context.Context, userID string) error {
	if _, err := s.exec(ctx, `DELETE FROM chat_sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete session %s: %w", userID, err)
	}
	return nil
}

// ResetStaleGenerations returns sessions stuck in generating to idle.
func (s *SQLiteStore) ResetStaleGenerations(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := time.Now()
	threshold := now.Add(-olderThan).UnixMilli()
	query := `
	UPDATE chat_sessions SET
		state = ?,
		document = json_remove(json_set(document, '$.state', ?), '$.active_generation_id'),
		updated_at = ?
	WHERE state = ? AND updated_at < ?`

	result, err := s.exec(ctx, query,
		string(domain.StateIdle), string(domain.StateIdle), now.UnixMilli(),
		string(domain.StateGenerating), threshold,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stale generations: %w", err)
	}
	return result.RowsAffected()
}

// CleanupExpiredSessions removes idle sessions older than TTL that have no
// custom styles and no history.
func (s *SQLiteStore) CleanupExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).UnixMilli()
	result, err := s.exec(ctx, `
		DELETE FROM chat_sessions
		WHERE state = ? AND updated_at < ?
		  AND COALESCE(json_extract(document, '$.custom_styles'), '{}') = '{}'
		  AND COALESCE(json_array_length(document, '$.history'), 0) = 0`,
		string(domain.StateIdle), threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired sessions: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	if rows > 0 {
		slog.Debug("Removed expired sessions", "count", rows)
	}
	return rows, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
