package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	v1 "github.com/nitinbetharia/schoolerp/internal/api/v1"
	"github.com/nitinbetharia/schoolerp/internal/apperr"
	"github.com/nitinbetharia/schoolerp/internal/models"
	mw "github.com/nitinbetharia/schoolerp/internal/server/middleware"
	"github.com/nitinbetharia/schoolerp/internal/server/respond"
)

// AuthService is everything the routes need from the auth service.
// *auth.Service satisfies it.
type AuthService interface {
	v1.AuthService
	mw.Authenticator
}

func (s *Server) routes(ctx context.Context) {
	cfg := s.deps.Config
	r := s.router

	r.NotFound(respond.Handler(routeNotFound).ServeHTTP)
	r.MethodNotAllowed(respond.Handler(routeNotFound).ServeHTTP)

	r.Method(http.MethodGet, "/health", v1.Health(v1.HealthDeps{
		Registry:    s.deps.Registry,
		Sessions:    s.deps.Sessions,
		Environment: cfg.Env,
		StartedAt:   s.startedAt,
		Models:      models.Names,
	}))
	if s.deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	cookie := v1.CookieConfig{Name: cfg.Session.CookieName, Secure: cfg.Session.CookieSecure}
	reg := s.deps.Registry
	doc := v1.NewDoc()

	// Mount API routes on /api/v1. Each group carries its own middleware and
	// its own huma API; all of them share one OpenAPI document.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.LoadSession(s.deps.Auth, cfg.Session.CookieName))

		r.Group(func(r chi.Router) {
			doc.Serve(r)
		})

		// Login: tenant optional, throttled per client IP.
		r.Group(func(r chi.Router) {
			r.Use(mw.ResolveTenant(s.resolver, mw.TenantOptional))
			r.Use(mw.RateLimitByIP(ctx, cfg.RateLimit.AuthRPS, cfg.RateLimit.AuthBurst))
			v1.RegisterLoginRoute(doc.Group(r), s.deps.Auth, cookie)
		})

		// The caller's own session.
		r.Group(func(r chi.Router) {
			r.Use(mw.ResolveTenant(s.resolver, mw.TenantOptional))
			r.Use(mw.RequireAuth(s.resolver))
			v1.RegisterSessionRoutes(doc.Group(r), s.deps.Auth, cookie)
		})

		// Tenant data. Roles are checked per operation.
		r.Group(func(r chi.Router) {
			r.Use(mw.ResolveTenant(s.resolver, mw.TenantRequired))
			r.Use(mw.RequireAuth(s.resolver))
			r.Use(mw.RateLimitByTenant(ctx, cfg.RateLimit.TenantRPS, cfg.RateLimit.TenantBurst))
			v1.RegisterEntityRoutes(doc.Group(r), reg)
		})

		// Operator endpoints.
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAuth(s.resolver))
			r.Use(mw.RequireSystemAdmin())
			v1.RegisterSystemRoutes(doc.Group(r), reg)
		})
	})
}

func routeNotFound(_ http.ResponseWriter, r *http.Request) error {
	return apperr.NotFound("Route not found",
		apperr.WithCode(apperr.CodeRouteNotFound),
		apperr.WithDetails(map[string]string{"method": r.Method, "path": r.URL.Path}),
	)
}
