// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/reelbot/internal/domain"
)

// Repository defines the interface for persisting chat sessions.
type Repository interface {
	// GetSession retrieves a session by user ID. A missing session returns (nil, nil).
	GetSession(ctx context.Context, userID string) (*domain.UserSession, error)

	// SaveSession creates or replaces a session document.
	SaveSession(ctx context.Context, session *domain.UserSession) error

	// DeleteSession removes a session.
	DeleteSession(ctx context.Context, userID string) error

	// ResetStaleGenerations returns sessions stuck in generating for longer than olderThan to idle.
	ResetStaleGenerations(ctx context.Context, olderThan time.Duration) (int64, error)

	// CleanupExpiredSessions removes idle sessions untouched for longer than
	// ttl. Sessions with custom styles or history are kept.
	CleanupExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies connectivity and returns an error if the backend is unreachable.
	Ping(ctx context.Context) error

	// Close releases the connection.
	Close() error
}
