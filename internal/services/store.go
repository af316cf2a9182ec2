package services

import (
	"context"
	"time"

	"village_market/internal/models"
	"village_market/internal/redis"
)

// Cache is the slice of the redis client the services read through.
type Cache interface {
	SetTempData(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	GetTempData(ctx context.Context, key string, dest interface{}) error
	DeleteTempData(ctx context.Context, key string) error
}

// Locker hands out expiring locks. Only the token returned by AcquireLock
// can release the lock it took.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

type SessionStore interface {
	SetSession(ctx context.Context, userID string, data *redis.SessionData, ttl time.Duration) error
	GetSession(ctx context.Context, userID string) (*redis.SessionData, error)
	DeleteSession(ctx context.Context, userID string) error
}

func requireSession(session *models.Session) error {
	if session == nil || session.UserID == "" {
		return ErrUnauthorized
	}
	return nil
}

func requireAdmin(session *models.Session) error {
	if err := requireSession(session); err != nil {
		return err
	}
	if !session.IsAdmin() {
		return ErrForbidden
	}
	return nil
}
