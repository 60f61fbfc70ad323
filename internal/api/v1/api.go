// Package v1 registers the /api/v1 operations on huma. Handlers return
// errors; the hooks in errors.go render them as the standard envelope.
package v1

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/nitinbetharia/schoolerp/internal/domain"
	"github.com/nitinbetharia/schoolerp/internal/server/middleware"
	"github.com/nitinbetharia/schoolerp/internal/server/respond"
)

var (
	tenantRoles = []string{domain.RoleAdmin, domain.RoleStaff, domain.RoleViewer}
	writerRoles = []string{domain.RoleAdmin, domain.RoleStaff}
	adminRoles  = []string{domain.RoleAdmin}
)

// Doc is one OpenAPI document shared by several huma APIs. Each API is
// mounted on its own chi group so it keeps that group's middleware.
type Doc struct {
	openapi *huma.OpenAPI
}

func NewDoc() *Doc {
	cfg := huma.DefaultConfig("School ERP API", "1.0.0")
	cfg.Servers = []*huma.Server{
		{URL: "/api/v1"},
	}
	return &Doc{openapi: cfg.OpenAPI}
}

// Group returns an API registering its operations on r.
func (d *Doc) Group(r chi.Router) huma.API {
	cfg := d.config()
	cfg.OpenAPIPath = ""
	cfg.DocsPath = ""
	cfg.SchemasPath = ""
	return humachi.New(r, cfg)
}

// Serve mounts the OpenAPI document, schemas and docs page on r.
func (d *Doc) Serve(r chi.Router) {
	humachi.New(r, d.config())
}

func (d *Doc) config() huma.Config {
	cfg := huma.DefaultConfig(d.openapi.Info.Title, d.openapi.Info.Version)
	cfg.OpenAPI = d.openapi
	// No $schema links: response bodies are the bare envelope.
	cfg.CreateHooks = nil
	return cfg
}

// Envelope is the success body of every operation.
type Envelope[T any] struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	Data    T             `json:"data"`
	Meta    *respond.Meta `json:"meta,omitempty"`
}

type Output[T any] struct {
	Body Envelope[T]
}

func success[T any](message string, data T) *Output[T] {
	return &Output[T]{Body: Envelope[T]{Success: true, Message: message, Data: data}}
}

func paged[T any](data T, meta respond.Meta) *Output[T] {
	out := success("", data)
	out.Body.Meta = &meta
	return out
}

// requireRole admits sessions whose role is one of roles. It runs before
// the input is parsed.
func requireRole(api huma.API, roles ...string) huma.Middlewares {
	return huma.Middlewares{func(ctx huma.Context, next func(huma.Context)) {
		if err := middleware.CheckRole(ctx.Context(), roles...); err != nil {
			_ = huma.WriteErr(api, ctx, http.StatusForbidden, err.Error(), err)
			return
		}
		next(ctx)
	}}
}
