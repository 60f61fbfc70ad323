package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitinbetharia/schoolerp/internal/apperr"
	"github.com/nitinbetharia/schoolerp/internal/domain"
	"github.com/nitinbetharia/schoolerp/internal/server/middleware"
	redisstore "github.com/nitinbetharia/schoolerp/internal/store/redis"
	"github.com/nitinbetharia/schoolerp/internal/tenant"
)

// stubAuth accepts exactly one token.
type stubAuth struct {
	token string
	sess  *redisstore.Session
}

func (a stubAuth) Authenticate(_ context.Context, token string) (*redisstore.Session, error) {
	if token != a.token {
		return nil, apperr.Authentication("Session token is invalid", apperr.WithCode(apperr.CodeTokenInvalid))
	}
	return a.sess, nil
}

func demoSession() *redisstore.Session {
	return &redisstore.Session{
		ID: "sess-1", UserID: "user-1", Username: "admin", Role: domain.RoleAdmin,
		Scope: domain.ScopeTenant, TenantCode: "demo",
	}
}

func TestLoadSession(t *testing.T) {
	t.Parallel()

	authn := stubAuth{token: "good", sess: demoSession()}

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		wantOK bool
		token  string
	}{
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") }, true, "good"},
		{"lowercase bearer", func(r *http.Request) { r.Header.Set("Authorization", "bearer good") }, true, "good"},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "erp_session", Value: "good"}) }, true, "good"},
		{"invalid token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer bad") }, false, "bad"},
		{"no token", func(*http.Request) {}, false, ""},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/api/v1/x", nil)
			tc.setup(req)

			var (
				ok    bool
				token string
			)
			h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, ok = middleware.SessionFromContext(r.Context())
				token = middleware.TokenFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			rec := serve(middleware.LoadSession(authn, "erp_session")(h), req)
			require.Equal(t, http.StatusOK, rec.Code, "LoadSession never rejects")
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.token, token)
		})
	}
}

func TestRequireAuth(t *testing.T) {
	t.Parallel()

	authn := stubAuth{token: "good", sess: demoSession()}

	tests := []struct {
		name   string
		host   string
		auth   string
		tenant string
		status int
		code   string
	}{
		{name: "own tenant", host: "demo.erp.test", auth: "Bearer good", status: http.StatusOK},
		{name: "no subdomain", host: "erp.test", auth: "Bearer good", status: http.StatusOK},
		{name: "no token", host: "demo.erp.test", status: http.StatusUnauthorized, code: "AUTH_REQUIRED"},
		{name: "invalid token", host: "demo.erp.test", auth: "Bearer bad", status: http.StatusUnauthorized, code: "AUTH_TOKEN_INVALID"},
		{name: "other subdomain", host: "other.erp.test", auth: "Bearer good", status: http.StatusForbidden, code: "AUTHZ_TENANT_MISMATCH"},
		{name: "other resolved tenant", host: "erp.test", auth: "Bearer good", tenant: "other", status: http.StatusForbidden, code: "AUTHZ_TENANT_MISMATCH"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/api/v1/x", nil)
			req.Host = tc.host
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			if tc.tenant != "" {
				req = req.WithContext(tenant.WithContext(req.Context(), testNaming.For(tc.tenant, tenant.SourceHeader)))
			}

			var called bool
			resolver := newResolver()
			h := middleware.LoadSession(authn, "erp_session")(middleware.RequireAuth(resolver)(okHandler(&called)))
			rec := serve(h, req)

			if tc.code == "" {
				assert.Equal(t, tc.status, rec.Code, rec.Body.String())
				assert.True(t, called)
				return
			}
			requireError(t, rec, tc.status, tc.code)
			assert.False(t, called)
		})
	}
}

func TestRequireAuth_SystemSessionIgnoresSubdomain(t *testing.T) {
	t.Parallel()

	sess := &redisstore.Session{ID: "s", UserID: "u", Role: domain.RoleSystemAdmin, Scope: domain.ScopeSystem}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/system/tenants", nil)
	req.Host = "demo.erp.test"
	req = req.WithContext(middleware.WithSession(req.Context(), sess))

	var called bool
	rec := serve(middleware.RequireAuth(newResolver())(okHandler(&called)), req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)

	uid, ok := middleware.UserIDFromContext(middleware.WithSession(context.Background(), sess))
	assert.True(t, ok)
	assert.Equal(t, "u", uid)
}
