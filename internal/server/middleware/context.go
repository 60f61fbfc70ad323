package middleware

import (
	"context"

	redisstore "github.com/nitinbetharia/schoolerp/internal/store/redis"
)

type contextKey string

const (
	ContextKeySession   contextKey = "session"
	ContextKeyAuthError contextKey = "auth_error"
	ContextKeyToken     contextKey = "token"
)

// SessionFromContext returns the session loaded by LoadSession.
func SessionFromContext(ctx context.Context) (*redisstore.Session, bool) {
	v, ok := ctx.Value(ContextKeySession).(*redisstore.Session)
	return v, ok && v != nil
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	sess, ok := SessionFromContext(ctx)
	if !ok {
		return "", false
	}
	return sess.UserID, true
}

func RoleFromContext(ctx context.Context) (string, bool) {
	sess, ok := SessionFromContext(ctx)
	if !ok {
		return "", false
	}
	return sess.Role, sess.Role != ""
}

// WithSession returns ctx carrying sess.
func WithSession(ctx context.Context, sess *redisstore.Session) context.Context {
	return context.WithValue(ctx, ContextKeySession, sess)
}

func authErrorFromContext(ctx context.Context) error {
	err, _ := ctx.Value(ContextKeyAuthError).(error)
	return err
}
