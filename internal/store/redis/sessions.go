// Package redis keeps login sessions in Redis. A session outlives no longer
// than its TTL; logout deletes it early.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nitinbetharia/schoolerp/internal/domain"
)

// ErrSessionNotFound is returned for unknown or expired sessions.
var ErrSessionNotFound = errors.New("redis: session not found")

// Session is the server-side record a session token points at.
type Session struct {
	ID         string       `json:"id"`
	UserID     string       `json:"user_id"`
	Username   string       `json:"username"`
	Role       string       `json:"role"`
	Scope      domain.Scope `json:"scope"`
	TenantCode string       `json:"tenant_code,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	ExpiresAt  time.Time    `json:"expires_at"`
}

type SessionStore struct {
	client *redis.Client
}

func New(ctx context.Context, addr, password string, db int) (*SessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.New: ping: %w", err)
	}

	return &SessionStore{client: client}, nil
}

func (s *SessionStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("redis.SessionStore.Close: %w", err)
	}
	return nil
}

func (s *SessionStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis.SessionStore.Ping: %w", err)
	}
	return nil
}

// Create stores sess until its ExpiresAt.
func (s *SessionStore) Create(ctx context.Context, sess *Session) error {
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("redis.SessionStore.Create: session %s already expired", sess.ID)
	}

	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("redis.SessionStore.Create: marshal: %w", err)
	}
	if err := s.client.Set(ctx, SessionKey(sess.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis.SessionStore.Create: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*Session, error) {
	payload, err := s.client.Get(ctx, SessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis.SessionStore.Get: %w", ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis.SessionStore.Get: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, fmt.Errorf("redis.SessionStore.Get: unmarshal: %w", err)
	}
	return &sess, nil
}

// Delete removes the session. Deleting an unknown session is not an error.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, SessionKey(id)).Err(); err != nil {
		return fmt.Errorf("redis.SessionStore.Delete: %w", err)
	}
	return nil
}

// SessionKey returns the Redis key holding session id.
func SessionKey(id string) string {
	return "session:" + id
}
