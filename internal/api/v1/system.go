package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/nitinbetharia/schoolerp/internal/apperr"
	"github.com/nitinbetharia/schoolerp/internal/registry"
	"github.com/nitinbetharia/schoolerp/internal/server/respond"
	"github.com/nitinbetharia/schoolerp/internal/tenant"
)

type TenantPathInput struct {
	Code string `path:"code" validate:"required,max=63" doc:"Tenant code"`
}

func (in *TenantPathInput) Resolve(huma.Context) []error { return check(in) }

// RegisterSystemRoutes registers the operator operations. The API must sit
// behind RequireAuth and RequireSystemAdmin.
func RegisterSystemRoutes(api huma.API, reg Registry) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tenant-connections",
		Method:      http.MethodGet,
		Path:        "/system/tenants",
		Summary:     "List open tenant connections",
		Tags:        []string{"System"},
	}, func(_ context.Context, _ *struct{}) (*Output[[]registry.HandleStats], error) {
		stats := reg.Stats()
		return paged(stats, respond.Meta{Total: len(stats), Limit: len(stats)}), nil
	})

	// A degraded handle that stopped reconnecting recovers here.
	huma.Register(api, huma.Operation{
		OperationID: "check-tenant-connection",
		Method:      http.MethodPost,
		Path:        "/system/tenants/{code}/probe",
		Summary:     "Ping a tenant database, opening its handle if needed",
		Tags:        []string{"System"},
	}, func(ctx context.Context, input *TenantPathInput) (*Output[registry.HandleStats], error) {
		code, ok := tenant.Normalize(input.Code)
		if !ok {
			return nil, apperr.Validation("Invalid tenant code",
				apperr.WithCode(apperr.CodeTenantInvalid),
				apperr.WithFields(apperr.FieldDetail{Field: "code", Message: "tenant code is malformed", Value: input.Code}),
			)
		}

		h, found := reg.Lookup(code)
		if !found {
			var err error
			if h, err = reg.Get(ctx, reg.Naming().For(code, tenant.SourceHeader)); err != nil {
				return nil, err
			}
		}

		if err := h.Probe(ctx); err != nil {
			return nil, err
		}
		return success("Tenant database is healthy", h.Stats()), nil
	})
}
