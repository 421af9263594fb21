package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/reelbot/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// RedisStore implements Repository with one JSON document per key.
// Idle expiry is delegated to key TTLs.
type RedisStore struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisOptions configures NewRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// SessionTTL expires untouched sessions that have no custom styles or
	// history. Zero keeps every session forever.
	SessionTTL time.Duration
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, opts RedisOptions) (Repository, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisWithClient(client, opts.Prefix, opts.SessionTTL), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client goredis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "reelbot"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + ":session:" + userID
}

// Ping verifies Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// GetSession retrieves a session by user ID.
func (s *RedisStore) GetSession(ctx context.Context, userID string) (*domain.UserSession, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", userID, err)
	}
	return decodeSession(userID, raw)
}

func decodeSession(userID string, raw []byte) (*domain.UserSession, error) {
	var session domain.UserSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", userID, err)
	}
	return &session, nil
}

// ttlFor returns the key expiry for session. Sessions with custom styles or
// history never expire.
func (s *RedisStore) ttlFor(session *domain.UserSession) time.Duration {
	if !session.Disposable() {
		return 0
	}
	return s.ttl
}

// SaveSession creates or replaces a session document and refreshes its TTL.
func (s *RedisStore) SaveSession(ctx context.Context, session *domain.UserSession) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(session.UserID), raw, s.ttlFor(session)).Err(); err != nil {
		return fmt.Errorf("set session %s: %w", session.UserID, err)
	}
	return nil
}

// DeleteSession removes a session.
func (s *RedisStore) DeleteSession(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", userID, err)
	}
	return nil
}

// ResetStaleGenerations scans session keys and resets those stuck in generating.
// Each reset is an optimistic transaction so a concurrent save wins.
func (s *RedisStore) ResetStaleGenerations(ctx context.Context, olderThan time.Duration) (int64, error) {
	threshold := time.Now().Add(-olderThan)
	var reset int64

	iter := s.client.Scan(ctx, 0, s.prefix+":session:*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, goredis.Nil) {
				return nil
			}
			if err != nil {
				return err
			}
			session, err := decodeSession(key, raw)
			if err != nil {
				return err
			}
			if session.State != domain.StateGenerating || !session.UpdatedAt.Before(threshold) {
				return nil
			}

			session.State = domain.StateIdle
			session.ActiveGenerationID = ""
			session.UpdatedAt = time.Now()
			updated, err := json.Marshal(session)
			if err != nil {
				return err
			}
			if _, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.Set(ctx, key, updated, s.ttlFor(session))
				return nil
			}); err != nil {
				return err
			}
			reset++
			return nil
		}, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			slog.Warn("Failed to reset stale session", "key", key, "error", err)
		}
	}
	if err := iter.Err(); err != nil {
		return reset, fmt.Errorf("scan sessions: %w", err)
	}
	return reset, nil
}

// CleanupExpiredSessions is a no-op: Redis expires disposable keys on its own.
func (s *RedisStore) CleanupExpiredSessions(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}
