package middleware

import (
	"context"
	"net/http"

	"github.com/nitinbetharia/schoolerp/internal/apperr"
	"github.com/nitinbetharia/schoolerp/internal/domain"
	"github.com/nitinbetharia/schoolerp/internal/server/respond"
)

// RequireRole returns middleware that checks if the authenticated user has one
// of the allowed roles. It must be chained after RequireAuth.
//
// Responds 401 AUTH_REQUIRED when no session is present and 403
// AUTHZ_INSUFFICIENT_ROLE when the role is not allowed.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := CheckRole(r.Context(), roles...); err != nil {
				respond.Error(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CheckRole is the check behind RequireRole, for callers that are not
// net/http middleware.
func CheckRole(ctx context.Context, roles ...string) error {
	role, ok := RoleFromContext(ctx)
	if !ok {
		return apperr.Authentication("Authentication required")
	}
	for _, allowed := range roles {
		if role == allowed {
			return nil
		}
	}
	return apperr.Authorization("Insufficient role for this action",
		apperr.WithCode(apperr.CodeInsufficientRole),
		apperr.WithDetails(map[string]any{"role": role, "required": roles}),
	)
}

// RequireSystemAdmin admits system administrators only.
func RequireSystemAdmin() func(http.Handler) http.Handler {
	return RequireRole(domain.RoleSystemAdmin)
}
