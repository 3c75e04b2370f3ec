package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hushboard/hushboard/internal/database"
	"github.com/hushboard/hushboard/internal/models"
)

const sessionKeyPrefix = "session:"

// SessionRepository defines the interface for server-side session records.
// Expiry is enforced by the store's TTL; an expired session simply stops
// resolving.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Delete(ctx context.Context, id string) error
}

type sessionRepo struct {
	redis *database.Redis
}

// NewSessionRepository creates a new Redis-backed session repository.
func NewSessionRepository(redis *database.Redis) SessionRepository {
	return &sessionRepo{redis: redis}
}

type sessionRecord struct {
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Create stores a session with a TTL derived from its expiry.
func (r *sessionRepo) Create(ctx context.Context, session *models.Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session expiry is in the past")
	}

	payload, err := json.Marshal(sessionRecord{
		UserID:    session.UserID,
		CreatedAt: session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	return r.redis.Set(ctx, sessionKeyPrefix+session.ID, payload, ttl)
}

// Get resolves a session by id. Returns nil, nil when the session does not
// exist or has expired out of the store.
func (r *sessionRepo) Get(ctx context.Context, id string) (*models.Session, error) {
	raw, err := r.redis.Get(ctx, sessionKeyPrefix+id)
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec sessionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &models.Session{
		ID:        id,
		UserID:    rec.UserID,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// Delete removes a session. Deleting an absent session is a no-op success,
// which makes logout idempotent.
func (r *sessionRepo) Delete(ctx context.Context, id string) error {
	return r.redis.Delete(ctx, sessionKeyPrefix+id)
}

// Compile-time check to ensure sessionRepo implements SessionRepository.
var _ SessionRepository = (*sessionRepo)(nil)
