package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/nitinbetharia/schoolerp/internal/apperr"
	"github.com/nitinbetharia/schoolerp/internal/domain"
	"github.com/nitinbetharia/schoolerp/internal/server/respond"
	redisstore "github.com/nitinbetharia/schoolerp/internal/store/redis"
	"github.com/nitinbetharia/schoolerp/internal/tenant"
)

// Authenticator resolves a session token to its live session.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*redisstore.Session, error)
}

// LoadSession reads the session token from the session cookie or a Bearer
// header. A valid token puts the session in the context; an invalid one is
// remembered so RequireAuth can report why. Requests are never rejected here.
func LoadSession(authn Authenticator, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := extractToken(r, cookieName)
			if tok == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyToken, tok)
			sess, err := authn.Authenticate(ctx, tok)
			if err != nil {
				ctx = context.WithValue(ctx, ContextKeyAuthError, err)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("user_id", sess.UserID)
			})
			next.ServeHTTP(w, r.WithContext(WithSession(ctx, sess)))
		})
	}
}

// RequireAuth rejects requests without a live session. A tenant session is
// only accepted for its own tenant: neither the resolved tenant nor the Host
// subdomain may name another one.
func RequireAuth(resolver *tenant.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := SessionFromContext(r.Context())
			if !ok {
				if err := authErrorFromContext(r.Context()); err != nil {
					respond.Error(w, r, err)
					return
				}
				respond.Error(w, r, apperr.Authentication("Authentication required"))
				return
			}

			if sess.Scope == domain.ScopeTenant {
				if err := checkTenant(r, resolver, sess); err != nil {
					respond.Error(w, r, err)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func checkTenant(r *http.Request, resolver *tenant.Resolver, sess *redisstore.Session) error {
	mismatch := func(other string) error {
		return apperr.Authorization("Session belongs to a different tenant",
			apperr.WithCode(apperr.CodeTenantMismatch),
			apperr.WithDetails(map[string]string{"session": sess.TenantCode, "requested": other}),
		)
	}

	if tc, ok := tenant.FromContext(r.Context()); ok && tc.Code != sess.TenantCode {
		return mismatch(tc.Code)
	}
	if resolver != nil {
		if host, ok, _ := resolver.FromHost(r.Host); ok && host.Code != sess.TenantCode {
			return mismatch(host.Code)
		}
	}
	return nil
}

// TokenFromContext returns the raw session token of the request, if any.
func TokenFromContext(ctx context.Context) string {
	tok, _ := ctx.Value(ContextKeyToken).(string)
	return tok
}

func extractToken(r *http.Request, cookieName string) string {
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}
