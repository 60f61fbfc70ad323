package middleware

import (
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/nitinbetharia/schoolerp/internal/apperr"
	"github.com/nitinbetharia/schoolerp/internal/server/respond"
	"github.com/nitinbetharia/schoolerp/internal/tenant"
)

// TenantMode says what ResolveTenant does when no tenant signal is present.
type TenantMode int

const (
	// TenantRequired rejects the request with TENANT_REQUIRED.
	TenantRequired TenantMode = iota
	// TenantOptional lets the request through without a tenant.
	TenantOptional
)

// ResolveTenant attaches the request's tenant to the context. It must run
// after LoadSession so the session's tenant is taken into account.
func ResolveTenant(resolver *tenant.Resolver, mode TenantMode) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var sessionTenant string
			if sess, ok := SessionFromContext(r.Context()); ok {
				sessionTenant = sess.TenantCode
			}

			tc, found, err := resolver.Resolve(r, sessionTenant)
			if err != nil {
				respond.Error(w, r, err)
				return
			}
			if !found {
				if mode == TenantRequired {
					respond.Error(w, r, apperr.Validation("A tenant is required for this request",
						apperr.WithCode(apperr.CodeTenantRequired)))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("tenant", tc.Code)
			})
			next.ServeHTTP(w, r.WithContext(tenant.WithContext(r.Context(), tc)))
		})
	}
}
