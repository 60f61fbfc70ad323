package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitinbetharia/schoolerp/internal/domain"
	redisstore "github.com/nitinbetharia/schoolerp/internal/store/redis"
)

func newStore(t *testing.T) (*redisstore.SessionStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	s, err := redisstore.New(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestNew_Unreachable(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = redisstore.New(context.Background(), addr, "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.New: ping")
}

func TestSessionStore_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, mr := newStore(t)

	sess := &redisstore.Session{
		ID:         "sid-1",
		UserID:     "u-1",
		Username:   "admin",
		Role:       domain.RoleAdmin,
		Scope:      domain.ScopeTenant,
		TenantCode: "demo",
		CreatedAt:  time.Now().UTC(),
		ExpiresAt:  time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, s.Create(ctx, sess))
	assert.True(t, mr.Exists("session:sid-1"))

	got, err := s.Get(ctx, "sid-1")
	require.NoError(t, err)
	assert.Equal(t, sess.UserID, got.UserID)
	assert.Equal(t, domain.ScopeTenant, got.Scope)
	assert.Equal(t, "demo", got.TenantCode)
	assert.WithinDuration(t, sess.ExpiresAt, got.ExpiresAt, time.Millisecond)

	ttl := mr.TTL("session:sid-1")
	assert.Greater(t, ttl, 59*time.Minute)
	assert.LessOrEqual(t, ttl, time.Hour)

	require.NoError(t, s.Delete(ctx, "sid-1"))
	_, err = s.Get(ctx, "sid-1")
	assert.ErrorIs(t, err, redisstore.ErrSessionNotFound)

	// Deleting twice is harmless.
	require.NoError(t, s.Delete(ctx, "sid-1"))
}

func TestSessionStore_Expiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, mr := newStore(t)

	require.NoError(t, s.Create(ctx, &redisstore.Session{ID: "sid-2", ExpiresAt: time.Now().Add(time.Minute)}))
	mr.FastForward(2 * time.Minute)

	_, err := s.Get(ctx, "sid-2")
	assert.ErrorIs(t, err, redisstore.ErrSessionNotFound)
}

func TestSessionStore_RejectsExpired(t *testing.T) {
	t.Parallel()

	s, _ := newStore(t)
	err := s.Create(context.Background(), &redisstore.Session{ID: "old", ExpiresAt: time.Now().Add(-time.Second)})
	require.Error(t, err)
}

func TestSessionStore_Ping(t *testing.T) {
	t.Parallel()

	s, mr := newStore(t)
	require.NoError(t, s.Ping(context.Background()))

	mr.Close()
	assert.Error(t, s.Ping(context.Background()))
}

func TestSessionKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "session:abc", redisstore.SessionKey("abc"))
}
